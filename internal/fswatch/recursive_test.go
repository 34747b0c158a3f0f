package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// acceptAll is an Interest that watches every path and never suppresses.
type acceptAll struct{}

func (acceptAll) Interested(absPath string) bool { return true }
func (acceptAll) IsWatched(absPath string) bool  { return true }
func (acceptAll) MatchersFor(absPath string) []MatcherFlags {
	return []MatcherFlags{{AcceptChangeEvents: true}}
}

func waitForEvent(t *testing.T, events <-chan Event, path string, want EventType) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Path == path && ev.Type == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v on %s", want, path)
		}
	}
}

func TestRecursiveReportsAddAndChange(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := NewRecursive(ctx, dir, acceptAll{})
	if err != nil {
		t.Skipf("recursive watch unavailable in this environment: %v", err)
	}
	defer rec.Close()

	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, rec.Events(), target, Add)

	if err := os.WriteFile(target, []byte("hello again"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, rec.Events(), target, Change)
}

func TestRecursiveReportsUnlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec, err := NewRecursive(ctx, dir, acceptAll{})
	if err != nil {
		t.Skipf("recursive watch unavailable in this environment: %v", err)
	}
	defer rec.Close()

	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, rec.Events(), target, Unlink)
}
