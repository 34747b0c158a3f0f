package fswatch

import (
	"context"

	"github.com/syncthing/notify"
)

// ExistenceInterest answers whether a path is registered for an existence
// probe and whether it is shadowed by an ordinary watched file (§4.4: "an
// event is relevant iff the path is registered in the appropriate existence
// set and is not also present in watchedFiles, to avoid duplicate
// delivery").
type ExistenceInterest interface {
	IsExistenceWatched(absPath string) bool
	IsWatched(absPath string) bool
}

// Existence is the depth-0 watcher dedicated to exists*/fileExists/
// directoryExists/symlinkExists probes (C4). It never reports change
// events.
type Existence struct {
	filter  ExistenceInterest
	backend chan notify.EventInfo
	out     chan Event
	cancel  context.CancelFunc
}

// NewExistence subscribes for create/remove events on the immediate
// contents of root (depth 0 — not recursive), mirroring the single-level
// notify.Watch call in lib/fs/basicfs_watch.go but without the "/..."
// recursion suffix.
func NewExistence(ctx context.Context, root string, filter ExistenceInterest) (*Existence, error) {
	ctx, cancel := context.WithCancel(ctx)
	backend := make(chan notify.EventInfo, backendBuffer)

	absShouldIgnore := func(absPath string) bool {
		return !filter.IsExistenceWatched(absPath)
	}
	if err := notify.WatchWithFilter(root, backend, absShouldIgnore, notify.Create|notify.Remove|notify.Rename); err != nil {
		cancel()
		notify.Stop(backend)
		return nil, err
	}
	fsLog.Debugf("existence watch established at %s", root)

	e := &Existence{
		filter:  filter,
		backend: backend,
		out:     make(chan Event),
		cancel:  cancel,
	}
	go e.pump(ctx)
	return e, nil
}

// Events returns the normalized add/unlink-only event stream.
func (e *Existence) Events() <-chan Event { return e.out }

// Close releases the underlying OS subscription.
func (e *Existence) Close() {
	e.cancel()
	notify.Stop(e.backend)
}

func (e *Existence) pump(ctx context.Context) {
	for {
		select {
		case ev, ok := <-e.backend:
			if !ok {
				return
			}
			e.dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Existence) dispatch(ctx context.Context, ev notify.EventInfo) {
	path := ev.Path()
	if e.filter.IsWatched(path) {
		// Already delivered by the recursive watcher; avoid duplicates.
		return
	}

	var evType EventType
	switch {
	case ev.Event()&(notify.Remove|notify.Rename) != 0:
		evType = Unlink
	case ev.Event()&notify.Create != 0:
		evType = Add
	default:
		// Existence watches never report content changes (§4.4).
		return
	}

	fsLog.Debugf("existence dispatch %s %s", evType, path)
	select {
	case e.out <- Event{Type: evType, Path: path}:
	case <-ctx.Done():
	}
}
