package genfs

import (
	"os"
	"path/filepath"

	"github.com/alloc/jumpgen/internal/changelog"
	"github.com/alloc/jumpgen/internal/globutil"
	"github.com/alloc/jumpgen/internal/registry"
)

// FS is the generator-facing facade (C6): "The API surface the generator
// uses; each call updates the watch registry and performs the filesystem
// action." One FS is constructed per run and is only valid for that run's
// lifetime — it holds the engine's watch registry and the change list
// resolved for that run.
type FS struct {
	Root    string
	Store   map[string]interface{}
	Changes []changelog.Change
	Events  *EventBus

	registry *registry.WatchRegistry
	watching bool
	name     string
}

func newFS(root string, reg *registry.WatchRegistry, store map[string]interface{}, changes []changelog.Change, bus *EventBus, watching bool, name string) *FS {
	return &FS{
		Root:     root,
		Store:    store,
		Changes:  changes,
		Events:   bus,
		registry: reg,
		watching: watching,
		name:     name,
	}
}

func (f *FS) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(f.Root, p)
}

// ScanOptions configures scan; zero value means: cwd=root, watch enabled,
// new empty files are not ignored, dotfiles excluded, relative results.
type ScanOptions struct {
	Cwd                 string
	NoWatch             bool
	IgnoreEmptyNewFiles bool
	Dot                 bool
	Absolute            bool
}

// Scan implements §4.6's scan: registers the given glob patterns at opts.Cwd
// (or root) unless NoWatch, then enumerates matches once against the
// filesystem as it stands right now.
func (f *FS) Scan(patterns []string, opts ScanOptions) ([]string, error) {
	base := f.Root
	if opts.Cwd != "" {
		base = f.abs(opts.Cwd)
	}

	full := make([]string, len(patterns))
	for i, p := range patterns {
		full[i] = joinPattern(base, p)
	}

	if !opts.NoWatch {
		if _, err := f.registry.AddPatterns(full, globutil.AddOptions{
			IgnoreEmptyNewFiles: opts.IgnoreEmptyNewFiles,
			Dot:                 opts.Dot,
		}); err != nil {
			return nil, wrapFSError("scan", base, err)
		}
	}

	matchers, err := compileAdHoc(full, opts.Dot)
	if err != nil {
		return nil, wrapFSError("scan", base, err)
	}

	var out []string
	err = walkGlobBases(matchers, func(absPath string) {
		out = append(out, f.present(absPath, opts.Absolute))
	})
	if err != nil {
		return nil, wrapFSError("scan", base, err)
	}
	return out, nil
}

// FindUpOptions configures findUp. Stop may be a glob string, an absolute
// directory path (traversal halts once that directory is reached), a
// []string of globs, or a StopFunc predicate; an empty Stop never halts
// early.
type FindUpOptions struct {
	Cwd      string
	Absolute bool
	Stop     interface{}
}

// StopFunc is a directory predicate usable as FindUpOptions.Stop.
type StopFunc func(dir string) bool

// FindUp implements §4.6/§4.6-tiebreak: walks upward from cwd registering a
// directory-listing pattern (and any stop globs) at each visited directory,
// returning the first match in directory-listing order.
func (f *FS) FindUp(patterns []string, opts FindUpOptions) (string, error) {
	dir := f.Root
	if opts.Cwd != "" {
		dir = f.abs(opts.Cwd)
	}

	var stopGlobs []string
	var stopFn StopFunc
	var stopPath string
	switch v := opts.Stop.(type) {
	case string:
		if filepath.IsAbs(v) {
			stopPath = filepath.Clean(v)
		} else {
			stopGlobs = []string{v}
		}
	case []string:
		stopGlobs = v
	case StopFunc:
		stopFn = v
	case func(string) bool:
		stopFn = v
	}

	for {
		full := make([]string, len(patterns))
		for i, p := range patterns {
			full[i] = joinPattern(dir, p)
		}
		registered := append(append([]string{}, full...), prefixEach(dir, stopGlobs)...)
		if _, err := f.registry.AddPatterns(registered, globutil.AddOptions{}); err != nil {
			return "", wrapFSError("findUp", dir, err)
		}

		matchers, err := compileAdHoc(full, false)
		if err != nil {
			return "", wrapFSError("findUp", dir, err)
		}

		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			return "", wrapFSError("findUp", dir, rerr)
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}

		for _, name := range names {
			full := filepath.Join(dir, name)
			for _, m := range matchers {
				if m.Match(full) {
					return f.present(full, opts.Absolute), nil
				}
			}
		}

		if stopPath != "" && dir == stopPath {
			return "", nil
		}
		if stopFn != nil && stopFn(dir) {
			return "", nil
		}
		if len(stopGlobs) > 0 {
			stopped := false
			for _, sg := range stopGlobs {
				sm, err := compileAdHoc([]string{joinPattern(dir, sg)}, false)
				if err == nil {
					for _, name := range names {
						full := filepath.Join(dir, name)
						for _, m := range sm {
							if m.Match(full) {
								stopped = true
							}
						}
					}
				}
			}
			if stopped {
				return "", nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ListOptions configures list.
type ListOptions struct {
	Absolute bool
	NoWatch  bool
	Glob     string
}

// List implements §4.6's list: registers dir/<glob> (default "*") unless
// NoWatch, then reads the directory once.
func (f *FS) List(dir string, opts ListOptions) ([]string, error) {
	absDir := f.abs(dir)
	glob := opts.Glob
	if glob == "" {
		glob = "*"
	}

	if !opts.NoWatch {
		if _, err := f.registry.AddPatterns([]string{joinPattern(absDir, glob)}, globutil.AddOptions{}); err != nil {
			return nil, wrapFSError("list", absDir, err)
		}
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, wrapFSError("list", absDir, err)
	}

	matcher, err := compileAdHoc([]string{joinPattern(absDir, glob)}, false)
	if err != nil {
		return nil, wrapFSError("list", absDir, err)
	}

	var out []string
	for _, e := range entries {
		full := filepath.Join(absDir, e.Name())
		matched := false
		for _, m := range matcher {
			if m.Match(full) {
				matched = true
			}
		}
		if matched {
			out = append(out, f.present(full, opts.Absolute))
		}
	}
	return out, nil
}

// ReadOptions configures read/tryRead.
type ReadOptions struct {
	Critical bool
}

// Read implements §4.6's read: addFile(path, {critical}) then reads the raw
// bytes, surfacing any I/O error.
func (f *FS) Read(path string, opts ReadOptions) ([]byte, error) {
	absPath := f.abs(path)
	f.registry.AddFile(absPath, registry.AddFileOptions{Critical: opts.Critical})
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapFSError("read", absPath, ErrNotFound)
		}
		return nil, wrapFSError("read", absPath, err)
	}
	return data, nil
}

// ReadString is Read decoded as UTF-8 text.
func (f *FS) ReadString(path string, opts ReadOptions) (string, error) {
	data, err := f.Read(path, opts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TryRead is Read but swallows any error (including not-found), returning
// (nil, false) instead — §4.6: "returns null on I/O error."
func (f *FS) TryRead(path string, opts ReadOptions) ([]byte, bool) {
	data, err := f.Read(path, opts)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Stat implements §4.6's stat: addFile(path) then os.Stat, returning
// ErrNotFound when missing.
func (f *FS) Stat(path string) (os.FileInfo, error) {
	absPath := f.abs(path)
	f.registry.AddFile(absPath, registry.AddFileOptions{})
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapFSError("stat", absPath, ErrNotFound)
		}
		return nil, wrapFSError("stat", absPath, err)
	}
	return info, nil
}

// Lstat is Stat using os.Lstat, so it observes symlinks themselves.
func (f *FS) Lstat(path string) (os.FileInfo, error) {
	absPath := f.abs(path)
	f.registry.AddFile(absPath, registry.AddFileOptions{})
	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapFSError("lstat", absPath, ErrNotFound)
		}
		return nil, wrapFSError("lstat", absPath, err)
	}
	return info, nil
}

// Exists registers an existence watch and reports whether path resolves via
// stat (following symlinks).
func (f *FS) Exists(path string) bool {
	absPath := f.abs(path)
	f.registry.WatchExistence(absPath)
	_, err := os.Stat(absPath)
	return err == nil
}

// FileExists is Exists narrowed to regular files.
func (f *FS) FileExists(path string) bool {
	absPath := f.abs(path)
	f.registry.WatchFileExistence(absPath)
	info, err := os.Stat(absPath)
	return err == nil && !info.IsDir()
}

// DirectoryExists is Exists narrowed to directories.
func (f *FS) DirectoryExists(path string) bool {
	absPath := f.abs(path)
	f.registry.WatchDirectoryExistence(absPath)
	info, err := os.Stat(absPath)
	return err == nil && info.IsDir()
}

// SymlinkExists reports whether path resolves via lstat, i.e. exists as a
// symlink specifically (or anything else) without following it.
func (f *FS) SymlinkExists(path string) bool {
	absPath := f.abs(path)
	f.registry.WatchExistence(absPath)
	_, err := os.Lstat(absPath)
	return err == nil
}

// Write implements §4.6's content-skipping write: if the file's current
// bytes equal data, nothing happens; otherwise parent directories are
// created and the new bytes are written, and a write event is published.
func (f *FS) Write(path string, data []byte) error {
	absPath := f.abs(path)
	if existing, err := os.ReadFile(absPath); err == nil && bytesEqual(existing, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return wrapFSError("write", absPath, err)
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return wrapFSError("write", absPath, err)
	}
	if f.Events != nil {
		f.Events.Publish(EventWrite, WriteEvent{Path: absPath, Name: f.name})
	}
	return nil
}

// WriteString is Write taking a string.
func (f *FS) WriteString(path, data string) error {
	return f.Write(path, []byte(data))
}

// WatchOptions configures watch (associative watching).
type WatchOptions struct {
	Cause string
}

// Watch implements §4.6's watch: addFile per path with cause propagation,
// performing no read.
func (f *FS) Watch(paths []string, opts WatchOptions) {
	for _, p := range paths {
		f.registry.AddFile(f.abs(p), registry.AddFileOptions{Cause: opts.Cause})
	}
}

func (f *FS) present(absPath string, absolute bool) string {
	if absolute {
		return absPath
	}
	rel, err := filepath.Rel(f.Root, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinPattern(base, pattern string) string {
	pattern = filepath.ToSlash(pattern)
	if filepath.IsAbs(pattern) {
		return filepath.Clean(pattern)
	}
	return filepath.ToSlash(base) + "/" + pattern
}

func prefixEach(base string, patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = joinPattern(base, p)
	}
	return out
}

func compileAdHoc(fullPatterns []string, dot bool) ([]*globutil.Matcher, error) {
	out := make([]*globutil.Matcher, 0, len(fullPatterns))
	for _, p := range fullPatterns {
		m, err := globutil.Compile(globutil.Spec{Pattern: p, Dot: dot})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// walkGlobBases enumerates each matcher's base directory tree once, calling
// visit for every file whose absolute path the matcher accepts. Several
// matchers sharing a base are each still evaluated independently, matching
// scan's "union of every registered pattern" semantics.
func walkGlobBases(matchers []*globutil.Matcher, visit func(absPath string)) error {
	seen := make(map[string]bool)
	for _, m := range matchers {
		base := m.Base
		err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == base {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !m.Match(path) {
				return nil
			}
			if !seen[path] {
				seen[path] = true
				visit(path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteEvent is the payload published alongside EventWrite.
type WriteEvent struct {
	Path string
	Name string
}
