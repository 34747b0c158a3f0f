// Package changelog implements the ordered, folded change log (C7):
// "Ordered mapping from affected path to a single folded change event
// between runs." Grounded on lib/watchaggregator's aggregatedEvent fold,
// adapted from a scan-scheduling debounce into the exact-once-per-path fold
// rules in spec §3.
package changelog

import (
	"github.com/alloc/jumpgen/internal/fswatch"
	"github.com/alloc/jumpgen/internal/logutil"
)

var clLog = logutil.New("changelog")

// Type is the folded event kind exposed to the generator: add, change or
// unlink. AddDir/unlinkDir collapse into Add/Unlink per §3 rule (b).
type Type int

const (
	Add Type = iota
	Modify
	Unlink
)

func (t Type) String() string {
	switch t {
	case Add:
		return "add"
	case Unlink:
		return "unlink"
	default:
		return "change"
	}
}

func normalize(t fswatch.EventType) Type {
	switch t {
	case fswatch.Add, fswatch.AddDir:
		return Add
	case fswatch.Unlink, fswatch.UnlinkDir:
		return Unlink
	default:
		return Modify
	}
}

// entry is the folded state for one absolute path.
type entry struct {
	typ Type
}

// Log is the ordered mapping described in §3, keyed by absolute path in
// first-observed order.
type Log struct {
	entries map[string]*entry
	order   []string
}

// New returns an empty change log.
func New() *Log {
	return &Log{entries: make(map[string]*entry)}
}

// Record folds one normalized filesystem event into the log, applying the
// rules in §3: a change may not overwrite an add or unlink; a later add or
// unlink always replaces whatever was there.
func (l *Log) Record(absPath string, evType fswatch.EventType) {
	nt := normalize(evType)

	e, ok := l.entries[absPath]
	if !ok {
		l.entries[absPath] = &entry{typ: nt}
		l.order = append(l.order, absPath)
		clLog.Debugf("record %s %s (new entry)", nt, absPath)
		return
	}

	if nt == Modify {
		if e.typ == Add || e.typ == Unlink {
			return
		}
		e.typ = Modify
		return
	}

	clLog.Debugf("record %s %s (folded over %s)", nt, absPath, e.typ)
	e.typ = nt
}

// Len reports how many paths currently have a folded entry.
func (l *Log) Len() int {
	return len(l.entries)
}

// HasCritical reports whether any logged path is in the critical set,
// triggering the hard reset decided in §4.8.
func (l *Log) HasCritical(isCritical func(string) bool) bool {
	for _, p := range l.order {
		if isCritical(p) {
			return true
		}
	}
	return false
}

// NonAdds returns, in observation order, every path whose last folded
// event was not add — the set the soft reset unwatches (§4.8, Testable
// Property 4).
func (l *Log) NonAdds() []string {
	var out []string
	for _, p := range l.order {
		if l.entries[p].typ != Add {
			out = append(out, p)
		}
	}
	return out
}

// Change is one entry of the folded, blame-resolved list exposed to the
// generator as ctx.changes.
type Change struct {
	Path string
	Type Type
}

// BlameResolver supplies the blame causes for a watched path, per §4.7.
type BlameResolver interface {
	CausesFor(path string) []string
}

// Resolve returns the final ordered change list, substituting each blamed
// path's causes for itself (§4.7: "if p has nonempty causes, emit one entry
// per cause instead of for p; otherwise emit for p"), deduplicating so a
// cause shared by multiple blamed descendants is reported once using the
// most recent folded type observed for it.
func (l *Log) Resolve(resolver BlameResolver) []Change {
	order := make([]string, 0, len(l.order))
	types := make(map[string]Type, len(l.order))
	seen := make(map[string]bool, len(l.order))

	for _, absPath := range l.order {
		e := l.entries[absPath]
		causes := resolver.CausesFor(absPath)
		if len(causes) == 0 {
			causes = []string{absPath}
		}
		for _, c := range causes {
			if !seen[c] {
				seen[c] = true
				order = append(order, c)
			}
			types[c] = e.typ
		}
	}

	out := make([]Change, len(order))
	for i, p := range order {
		out[i] = Change{Path: p, Type: types[p]}
	}
	clLog.Debugf("resolved %d folded entries into %d changes", len(l.order), len(out))
	return out
}

// Clear empties the log, called after every reset decision (§4.8).
func (l *Log) Clear() {
	l.entries = make(map[string]*entry)
	l.order = nil
}
