// Package logutil is the shared debug-logging facility (A1), grounded on
// lib/logger.Logger's facility model: a shared base logger, toggled per
// named facility by an environment variable, importable by every package
// that wants to log without creating an import cycle back into the
// top-level genfs package.
package logutil

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Facility is a small per-package debug logger.
type Facility struct {
	name string
}

var (
	mu      sync.Mutex
	all     bool
	names   map[string]bool
	baseLog = log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
	envVar  = "GENFS_DEBUG"
)

func init() {
	load(os.Getenv(envVar))
}

func load(v string) {
	mu.Lock()
	defer mu.Unlock()
	all = false
	names = make(map[string]bool)
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == "all" {
			all = true
			continue
		}
		names[name] = true
	}
}

// SetDebug toggles debug logging for a named facility at runtime, mirroring
// the teacher's STTRACE environment variable but settable from code too.
func SetDebug(name string, enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if names == nil {
		names = make(map[string]bool)
	}
	names[name] = enabled
}

// New returns a facility logger for the given name.
func New(name string) Facility {
	return Facility{name: name}
}

func (f Facility) enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return all || names[f.name]
}

// Debugf logs a formatted message if this facility is enabled.
func (f Facility) Debugf(format string, args ...interface{}) {
	if !f.enabled() {
		return
	}
	baseLog.Printf("[%s] "+format, append([]interface{}{f.name}, args...)...)
}

// Debugln logs its arguments space-separated if this facility is enabled.
func (f Facility) Debugln(args ...interface{}) {
	if !f.enabled() {
		return
	}
	prefixed := append([]interface{}{fmt.Sprintf("[%s]", f.name)}, args...)
	baseLog.Println(prefixed...)
}
