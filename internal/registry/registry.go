// Package registry implements the watch registry (C5): the bookkeeping
// that ties together watched files, blame ("associative watching"),
// critical files and the missing-path fallback chain described in spec §3
// and §4.5. It also exposes the pattern registry (C2) it sits on top of,
// since both answer the single "is this path of interest?" question the
// watchers consult.
package registry

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/alloc/jumpgen/internal/fswatch"
	"github.com/alloc/jumpgen/internal/globutil"
	"github.com/alloc/jumpgen/internal/logutil"
)

var regLog = logutil.New("registry")

// AddFileOptions carries the optional blame cause and critical flag from
// §4.5's addFile(p, {cause?, critical?}).
type AddFileOptions struct {
	Cause    string
	Critical bool
}

// causeSet is an insertion-ordered set, used so blamedFiles reports causes
// in a deterministic order (§9 Open Question c).
type causeSet struct {
	order []string
	set   map[string]struct{}
}

func newCauseSet() *causeSet {
	return &causeSet{set: make(map[string]struct{})}
}

func (c *causeSet) add(v string) {
	if _, ok := c.set[v]; ok {
		return
	}
	c.set[v] = struct{}{}
	c.order = append(c.order, v)
}

func (c *causeSet) remove(v string) {
	if _, ok := c.set[v]; !ok {
		return
	}
	delete(c.set, v)
	for i, x := range c.order {
		if x == v {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *causeSet) empty() bool { return len(c.set) == 0 }

func (c *causeSet) values() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// WatchRegistry is C5: "Tracks watched files, blame mapping, critical
// flags, missing-path fallbacks; instructs C3/C4; answers queries."
type WatchRegistry struct {
	// mu guards every field below; Interested/IsWatched/MatchersFor are
	// called from the watcher goroutines (C3/C4) concurrently with AddFile
	// calls from the generator body's goroutine and Unwatch/CheckAdded calls
	// from the run-loop goroutine.
	mu sync.Mutex

	watchedFiles  map[string]struct{}
	blamedFiles   map[string]*causeSet
	criticalFiles map[string]struct{}
	missingPaths  map[string]struct{}
	fallbackPaths map[string]int
	// fallbackChains records, for each currently-missing path, the exact
	// ancestor chain whose fallbackPaths counters were incremented for it,
	// so the release in checkAddedLocked is exact rather than re-derived
	// from current filesystem state (which may have changed in between).
	fallbackChains map[string][]string

	existencePaths          map[string]struct{}
	fileExistencePaths      map[string]struct{}
	directoryExistencePaths map[string]struct{}

	patterns *globutil.Registry
	// runMatchers records matchers added via AddPatterns during the run in
	// progress, so a soft reset can release matchers whose scan/findUp/list
	// base the next run may no longer visit (§3, "Lifecycles": "Matcher:
	// released on soft reset only when its base is no longer relevant").
	runMatchers []*globutil.Matcher

	stat func(string) (os.FileInfo, error)
}

// New returns an empty watch registry rooted conceptually at whatever root
// the owning engine passes to pattern compilation.
func New() *WatchRegistry {
	return &WatchRegistry{
		watchedFiles:            make(map[string]struct{}),
		blamedFiles:             make(map[string]*causeSet),
		criticalFiles:           make(map[string]struct{}),
		missingPaths:            make(map[string]struct{}),
		fallbackPaths:           make(map[string]int),
		fallbackChains:          make(map[string][]string),
		existencePaths:          make(map[string]struct{}),
		fileExistencePaths:      make(map[string]struct{}),
		directoryExistencePaths: make(map[string]struct{}),
		patterns:                globutil.NewRegistry(),
		stat:                    os.Stat,
	}
}

// Patterns returns the underlying pattern registry (C2) for read-only
// queries (Match/MatchersFor); callers that register new patterns use
// AddPatterns instead, so the registry can track and later release them.
func (r *WatchRegistry) Patterns() *globutil.Registry {
	return r.patterns
}

// AddPatterns compiles and registers patterns against the pattern registry
// (C2) and tracks the resulting matchers against the run in progress, so
// ReleaseRunMatchers can drop them on the next soft reset.
func (r *WatchRegistry) AddPatterns(patterns []string, opts globutil.AddOptions) ([]*globutil.Matcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added, err := r.patterns.Add(patterns, opts)
	if err != nil {
		return nil, err
	}
	r.runMatchers = append(r.runMatchers, added...)
	regLog.Debugf("tracked %d matcher(s) for %v", len(added), patterns)
	return added, nil
}

// ReleaseRunMatchers drops every matcher tracked since the last call (i.e.
// registered by the run that just finished), called from the soft-reset
// path before the next run re-registers whatever bases it still visits.
func (r *WatchRegistry) ReleaseRunMatchers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runMatchers) == 0 {
		return
	}
	regLog.Debugf("releasing %d matcher(s) from the finished run", len(r.runMatchers))
	r.patterns.Remove(r.runMatchers...)
	r.runMatchers = nil
}

// AddFile implements §4.5's addFile semantics.
func (r *WatchRegistry) AddFile(p string, opts AddFileOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, wasWatched := r.watchedFiles[p]
	r.watchedFiles[p] = struct{}{}

	if opts.Critical {
		r.criticalFiles[p] = struct{}{}
	}

	if opts.Cause != "" {
		cs, existed := r.blamedFiles[p]
		if !existed {
			cs = newCauseSet()
			if wasWatched {
				cs.add(p)
			}
			r.blamedFiles[p] = cs
		}
		cs.add(opts.Cause)
	} else if cs, ok := r.blamedFiles[p]; ok {
		cs.add(p)
	}

	if _, err := r.stat(p); err != nil {
		r.registerMissingLocked(p)
	} else {
		r.checkAddedLocked(p)
	}
	regLog.Debugf("addFile %s (cause=%q critical=%v)", p, opts.Cause, opts.Critical)
}

// registerMissingLocked implements the fallback registration in §4.5:
// "register p in missingPaths, then walk to dirname(p) incrementing
// fallbackPaths[ancestor] until an existing ancestor is found."
func (r *WatchRegistry) registerMissingLocked(p string) {
	if _, ok := r.missingPaths[p]; ok {
		return
	}
	r.missingPaths[p] = struct{}{}

	var chain []string
	ancestor := filepath.Dir(p)
	for {
		if _, err := r.stat(ancestor); err == nil {
			break
		}
		r.fallbackPaths[ancestor]++
		chain = append(chain, ancestor)
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	r.fallbackChains[p] = chain
}

// CheckAdded implements the recursive watcher's checkAddedPath callback
// (§4.3): "On add/addDir, calls checkAddedPath(p) in C5 to decrement any
// fallback counter."
func (r *WatchRegistry) CheckAdded(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkAddedLocked(p)
}

func (r *WatchRegistry) checkAddedLocked(p string) {
	chain, ok := r.fallbackChains[p]
	if !ok {
		return
	}
	delete(r.missingPaths, p)
	delete(r.fallbackChains, p)
	for _, ancestor := range chain {
		if c := r.fallbackPaths[ancestor]; c <= 1 {
			delete(r.fallbackPaths, ancestor)
		} else {
			r.fallbackPaths[ancestor] = c - 1
		}
	}
	regLog.Debugf("checkAdded %s released fallback chain of length %d", p, len(chain))
}

func (r *WatchRegistry) releaseMissingLocked(p string) {
	if chain, ok := r.fallbackChains[p]; ok {
		delete(r.missingPaths, p)
		delete(r.fallbackChains, p)
		for _, ancestor := range chain {
			if c := r.fallbackPaths[ancestor]; c <= 1 {
				delete(r.fallbackPaths, ancestor)
			} else {
				r.fallbackPaths[ancestor] = c - 1
			}
		}
	}
}

// Unwatch implements §4.5's unwatch semantics, cascading through blame.
func (r *WatchRegistry) Unwatch(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regLog.Debugf("unwatch %s", p)
	r.unwatchLocked(p)
}

func (r *WatchRegistry) unwatchLocked(p string) {
	delete(r.watchedFiles, p)
	delete(r.blamedFiles, p)
	delete(r.criticalFiles, p)
	delete(r.existencePaths, p)
	delete(r.fileExistencePaths, p)
	delete(r.directoryExistencePaths, p)
	r.releaseMissingLocked(p)

	var cascade []string
	for q, cs := range r.blamedFiles {
		if _, has := cs.set[p]; has {
			cs.remove(p)
			if cs.empty() {
				cascade = append(cascade, q)
			}
		}
	}
	for _, q := range cascade {
		r.unwatchLocked(q)
	}
}

// IsFileCritical reports whether p is marked critical (§4.5).
func (r *WatchRegistry) IsFileCritical(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.criticalFiles[p]
	return ok
}

// CausesFor returns the ordered blame causes for p, or nil if p carries no
// blame mapping (§4.7: "if p has nonempty causes, emit one entry per cause
// instead of for p").
func (r *WatchRegistry) CausesFor(p string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.blamedFiles[p]
	if !ok || cs.empty() {
		return nil
	}
	return cs.values()
}

// WatchedFiles returns a snapshot of currently watched files.
func (r *WatchRegistry) WatchedFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.watchedFiles))
	for p := range r.watchedFiles {
		out = append(out, p)
	}
	return out
}

// BlamedFiles returns a snapshot of the blame mapping.
func (r *WatchRegistry) BlamedFiles() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.blamedFiles))
	for p, cs := range r.blamedFiles {
		out[p] = cs.values()
	}
	return out
}

// WatchExistence registers p for a plain existence probe (exists/
// symlinkExists).
func (r *WatchRegistry) WatchExistence(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.existencePaths[p] = struct{}{}
}

// WatchFileExistence registers p for a fileExists probe.
func (r *WatchRegistry) WatchFileExistence(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fileExistencePaths[p] = struct{}{}
}

// WatchDirectoryExistence registers p for a directoryExists probe.
func (r *WatchRegistry) WatchDirectoryExistence(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directoryExistencePaths[p] = struct{}{}
}

// Interested implements fswatch.Filter: "accepts p iff p ∈ watchedFiles ∨ p
// ∈ fallbackPaths ∨ patternRegistry.match(p)" (§4.3).
func (r *WatchRegistry) Interested(absPath string) bool {
	r.mu.Lock()
	if _, ok := r.watchedFiles[absPath]; ok {
		r.mu.Unlock()
		return true
	}
	if _, ok := r.fallbackPaths[absPath]; ok {
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()
	return r.patterns.Match(absPath)
}

// IsWatched implements fswatch.Interest / fswatch.ExistenceInterest.
func (r *WatchRegistry) IsWatched(absPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watchedFiles[absPath]
	return ok
}

// IsExistenceWatched implements fswatch.ExistenceInterest (§4.4).
func (r *WatchRegistry) IsExistenceWatched(absPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.existencePaths[absPath]; ok {
		return true
	}
	if _, ok := r.fileExistencePaths[absPath]; ok {
		return true
	}
	_, ok := r.directoryExistencePaths[absPath]
	return ok
}

// MatchersFor implements fswatch.Interest, translating pattern-registry
// matchers into the bare flags the recursive watcher needs for its
// filtering fold (§4.3).
func (r *WatchRegistry) MatchersFor(absPath string) []fswatch.MatcherFlags {
	matchers := r.patterns.MatchersFor(absPath)
	if len(matchers) == 0 {
		return nil
	}
	out := make([]fswatch.MatcherFlags, len(matchers))
	for i, m := range matchers {
		out[i] = fswatch.MatcherFlags{
			IgnoreEmptyNewFiles: m.IgnoreEmptyNewFiles,
			AcceptChangeEvents:  m.AcceptChangeEvents,
		}
	}
	return out
}

// Close releases every tracked path and pattern, used on hard reset
// (§4.8).
func (r *WatchRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	regLog.Debugln("hard reset: clearing registry")
	r.watchedFiles = make(map[string]struct{})
	r.blamedFiles = make(map[string]*causeSet)
	r.criticalFiles = make(map[string]struct{})
	r.missingPaths = make(map[string]struct{})
	r.fallbackPaths = make(map[string]int)
	r.fallbackChains = make(map[string][]string)
	r.existencePaths = make(map[string]struct{})
	r.fileExistencePaths = make(map[string]struct{})
	r.directoryExistencePaths = make(map[string]struct{})
	r.patterns.Clear()
	r.runMatchers = nil
}
