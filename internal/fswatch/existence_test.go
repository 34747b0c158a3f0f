package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type existenceOnly struct{}

func (existenceOnly) IsExistenceWatched(absPath string) bool { return true }
func (existenceOnly) IsWatched(absPath string) bool          { return false }

func TestExistenceReportsAddAndUnlink(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex, err := NewExistence(ctx, dir, existenceOnly{})
	if err != nil {
		t.Skipf("existence watch unavailable in this environment: %v", err)
	}
	defer ex.Close()

	target := filepath.Join(dir, "c.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, ex.Events(), target, Add)

	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	waitForEvent(t, ex.Events(), target, Unlink)
}

func TestExistenceSkipsPathsAlreadyWatched(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex, err := NewExistence(ctx, dir, alreadyWatched{})
	if err != nil {
		t.Skipf("existence watch unavailable in this environment: %v", err)
	}
	defer ex.Close()

	target := filepath.Join(dir, "d.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ex.Events():
		t.Fatalf("did not expect an existence event for an already-watched path, got %v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

type alreadyWatched struct{}

func (alreadyWatched) IsExistenceWatched(absPath string) bool { return true }
func (alreadyWatched) IsWatched(absPath string) bool          { return true }
