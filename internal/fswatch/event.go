// Package fswatch wraps github.com/syncthing/notify into the two watcher
// shapes the engine needs: a recursive watcher filtered by interest (C3) and
// a shallow existence watcher (C4). Grounded on
// lib/fs/basicfs_watch.go's notify.WatchWithFilter/watchLoop pattern.
package fswatch

// EventType enumerates the normalized filesystem events from §4.3.
type EventType int

const (
	Add EventType = iota
	AddDir
	Change
	Unlink
	UnlinkDir
)

func (t EventType) String() string {
	switch t {
	case Add:
		return "add"
	case AddDir:
		return "addDir"
	case Change:
		return "change"
	case Unlink:
		return "unlink"
	case UnlinkDir:
		return "unlinkDir"
	default:
		return "unknown"
	}
}

// IsRemove reports whether the event represents a removal of any kind.
func (t EventType) IsRemove() bool {
	return t == Unlink || t == UnlinkDir
}

// IsDir reports whether the event concerns a directory entry.
func (t EventType) IsDir() bool {
	return t == AddDir || t == UnlinkDir
}

// Event is a normalized filesystem event carrying an absolute path.
type Event struct {
	Type EventType
	Path string
}

// Filter decides whether a path observed at the OS level is of interest,
// per §4.3: "accepts p iff p ∈ watchedFiles ∨ p ∈ fallbackPaths ∨
// patternRegistry.match(p)". Implemented by internal/registry.WatchRegistry.
type Filter interface {
	Interested(absPath string) bool
}
