package genfs

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the error taxonomy (A2), checked with errors.Is.
// Generator bodies return ErrAborted (or let a context cancellation bubble
// up) to signal a clean abort rather than a failure; the run loop treats the
// two identically.
var (
	ErrNotFound     = errors.New("genfs: not found")
	ErrAborted      = errors.New("genfs: aborted")
	ErrTimeout      = errors.New("genfs: timed out")
	ErrDestroyed    = errors.New("genfs: engine destroyed")
	ErrInvalidWatch = errors.New("genfs: watch target escapes root")
)

// FSError wraps a facade operation's failure with the operation name and
// path, following the *PathError convention the standard library and
// lib/fs both use, so callers can still errors.Is/errors.As through it.
type FSError struct {
	Op   string
	Path string
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("genfs: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }

func wrapFSError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FSError{Op: op, Path: path, Err: err}
}
