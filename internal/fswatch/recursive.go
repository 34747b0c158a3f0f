package fswatch

import (
	"context"
	"os"
	"sync"

	"github.com/syncthing/notify"

	"github.com/alloc/jumpgen/internal/logutil"
)

var fsLog = logutil.New("fswatch")

// MatcherFlags carries the two event-interest flags a matcher attaches to
// an otherwise-uninteresting path (§3 Matcher, §4.3 filtering fold).
type MatcherFlags struct {
	IgnoreEmptyNewFiles bool
	AcceptChangeEvents  bool
}

// Interest answers the questions the recursive watcher needs to fold raw
// notify events into the normalized stream described in §4.3.
type Interest interface {
	Filter
	IsWatched(absPath string) bool
	MatchersFor(absPath string) []MatcherFlags
}

// backendBuffer bounds the channel notify delivers raw events on. Not meant
// to be changed outside tests, following lib/fs/basicfs_watch.go's
// backendBuffer.
var backendBuffer = 500

// Recursive subscribes to filesystem notifications below root and emits the
// normalized event stream for C3 ("Recursive watcher").
type Recursive struct {
	root    string
	filter  Interest
	backend chan notify.EventInfo
	out     chan Event
	errs    chan error
	cancel  context.CancelFunc

	mu      sync.Mutex
	dirHint map[string]bool
}

// NewRecursive subscribes for all events under root, filtered by the given
// Interest, and starts the goroutine pumping normalized events. Grounded on
// BasicFilesystem.Watch in lib/fs/basicfs_watch.go.
func NewRecursive(ctx context.Context, root string, filter Interest) (*Recursive, error) {
	ctx, cancel := context.WithCancel(ctx)
	backend := make(chan notify.EventInfo, backendBuffer)

	absShouldIgnore := func(absPath string) bool {
		return !filter.Interested(absPath)
	}
	watchPath := root + string(os.PathSeparator) + "..."
	if err := notify.WatchWithFilter(watchPath, backend, absShouldIgnore, notify.Create|notify.Write|notify.Remove|notify.Rename); err != nil {
		cancel()
		notify.Stop(backend)
		return nil, err
	}
	fsLog.Debugf("recursive watch established at %s", root)

	r := &Recursive{
		root:    root,
		filter:  filter,
		backend: backend,
		out:     make(chan Event),
		errs:    make(chan error, 1),
		cancel:  cancel,
		dirHint: make(map[string]bool),
	}
	go r.pump(ctx)
	return r, nil
}

// Events returns the normalized event stream.
func (r *Recursive) Events() <-chan Event { return r.out }

// Errors returns the watcher's error channel. Nothing in this package sends
// on it, so it never yields a value; a failed subscription is reported only
// by NewRecursive's returned error.
func (r *Recursive) Errors() <-chan error { return r.errs }

// Close releases the underlying OS subscription.
func (r *Recursive) Close() {
	r.cancel()
	notify.Stop(r.backend)
}

func (r *Recursive) pump(ctx context.Context) {
	for {
		select {
		case ev, ok := <-r.backend:
			if !ok {
				return
			}
			r.dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Recursive) dispatch(ctx context.Context, ev notify.EventInfo) {
	path := ev.Path()
	evType := r.classify(ev.Event(), path)

	switch evType {
	case Add, AddDir:
		if r.suppressEmptyAdd(path, evType) {
			fsLog.Debugf("suppressed empty-add for %s", path)
			return
		}
	case Change:
		if r.suppressChange(path) {
			fsLog.Debugf("suppressed uninteresting change for %s", path)
			return
		}
	}

	fsLog.Debugf("dispatch %s %s", evType, path)
	select {
	case r.out <- Event{Type: evType, Path: path}:
	case <-ctx.Done():
	}
}

// suppressEmptyAdd implements §4.3: "An add event is suppressed if the path
// is not in watchedFiles and every applicable matcher has
// ignoreEmptyNewFiles = true and the file's current size is zero."
func (r *Recursive) suppressEmptyAdd(path string, evType EventType) bool {
	if evType == AddDir {
		return false
	}
	if r.filter.IsWatched(path) {
		return false
	}
	flags := r.filter.MatchersFor(path)
	if len(flags) == 0 {
		return false
	}
	for _, f := range flags {
		if !f.IgnoreEmptyNewFiles {
			return false
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() == 0
}

// suppressChange implements §4.3: "A change event is suppressed if the path
// is not in watchedFiles and every applicable matcher has
// acceptChangeEvents = false."
func (r *Recursive) suppressChange(path string) bool {
	if r.filter.IsWatched(path) {
		return false
	}
	flags := r.filter.MatchersFor(path)
	if len(flags) == 0 {
		return true
	}
	for _, f := range flags {
		if f.AcceptChangeEvents {
			return false
		}
	}
	return true
}

// classify maps a raw notify event to one of the five normalized types.
// Create/Write events can stat the path directly; Remove/Rename cannot, so
// directory-ness is recalled from a hint recorded the last time the same
// path was seen to exist.
func (r *Recursive) classify(ev notify.Event, path string) EventType {
	switch {
	case ev&notify.Remove != 0 || ev&notify.Rename != 0:
		r.mu.Lock()
		wasDir, known := r.dirHint[path]
		delete(r.dirHint, path)
		r.mu.Unlock()
		if known && wasDir {
			return UnlinkDir
		}
		return Unlink
	case ev&notify.Create != 0:
		isDir := r.statIsDir(path)
		if isDir {
			return AddDir
		}
		return Add
	default:
		return Change
	}
}

func (r *Recursive) statIsDir(path string) bool {
	info, err := os.Stat(path)
	isDir := err == nil && info.IsDir()
	r.mu.Lock()
	r.dirHint[path] = isDir
	r.mu.Unlock()
	return isDir
}
