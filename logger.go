package genfs

import "github.com/alloc/jumpgen/internal/logutil"

// facility is the genfs-local alias for the shared debug facility (A1), so
// call sites in this package read newFacility("run") etc. without importing
// internal/logutil directly. internal/registry, internal/fswatch and
// internal/changelog hold their own facilities against the same package,
// since they sit underneath genfs and can't import it back.
type facility = logutil.Facility

func newFacility(name string) facility {
	return logutil.New(name)
}

// SetDebug toggles debug logging for a named facility at runtime, mirroring
// the teacher's STTRACE environment variable but settable from code too.
// Facility names in use: "run", "registry", "fswatch", "changelog".
func SetDebug(name string, enabled bool) {
	logutil.SetDebug(name, enabled)
}
