package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alloc/jumpgen/internal/globutil"
)

func statOK(_ string) (os.FileInfo, error) { return nil, nil }
func statMissing(_ string) (os.FileInfo, error) {
	return nil, errors.New("not found")
}

func newTestRegistry(stat func(string) (os.FileInfo, error)) *WatchRegistry {
	r := New()
	r.stat = stat
	return r
}

func TestAddFileBasic(t *testing.T) {
	r := newTestRegistry(statOK)
	r.AddFile("/a.txt", AddFileOptions{})
	if !r.IsWatched("/a.txt") {
		t.Error("expected /a.txt to be watched")
	}
	if r.IsFileCritical("/a.txt") {
		t.Error("did not expect /a.txt to be critical")
	}
}

func TestAddFileCritical(t *testing.T) {
	r := newTestRegistry(statOK)
	r.AddFile("/cfg.json", AddFileOptions{Critical: true})
	if !r.IsFileCritical("/cfg.json") {
		t.Error("expected /cfg.json to be critical")
	}
}

func TestBlameSeedingOnAlreadyWatchedFile(t *testing.T) {
	r := newTestRegistry(statOK)
	r.AddFile("/generated.out", AddFileOptions{})
	r.AddFile("/generated.out", AddFileOptions{Cause: "/source.in"})

	causes := r.CausesFor("/generated.out")
	if len(causes) != 2 || causes[0] != "/generated.out" || causes[1] != "/source.in" {
		t.Errorf("CausesFor(/generated.out) = %v, want [/generated.out /source.in]", causes)
	}
}

func TestBlameReAddWithoutCause(t *testing.T) {
	r := newTestRegistry(statOK)
	r.AddFile("/generated.out", AddFileOptions{Cause: "/source.in"})
	r.AddFile("/generated.out", AddFileOptions{})

	causes := r.CausesFor("/generated.out")
	found := false
	for _, c := range causes {
		if c == "/generated.out" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected /generated.out to be added to its own causes, got %v", causes)
	}
}

func TestUnwatchCascadesThroughBlame(t *testing.T) {
	r := newTestRegistry(statOK)
	r.AddFile("/generated.out", AddFileOptions{Cause: "/source.in"})
	r.Unwatch("/source.in")

	if r.IsWatched("/generated.out") {
		t.Error("expected /generated.out unwatched once its only cause is removed")
	}
}

func TestMissingPathFallbackChain(t *testing.T) {
	exists := map[string]bool{string(filepath.Separator): true}
	stat := func(p string) (os.FileInfo, error) {
		if exists[p] {
			return nil, nil
		}
		return nil, errors.New("not found")
	}
	r := newTestRegistry(stat)

	missing := filepath.Join(string(filepath.Separator), "a", "b", "missing.txt")
	r.AddFile(missing, AddFileOptions{})

	ancestor := filepath.Dir(missing)
	if _, ok := r.fallbackPaths[ancestor]; !ok {
		t.Errorf("expected fallback registered at %s", ancestor)
	}

	exists[missing] = true
	r.CheckAdded(missing)
	if _, ok := r.fallbackPaths[ancestor]; ok {
		t.Error("expected fallback released after CheckAdded")
	}
}

func TestInterestedMatchesPatternsToo(t *testing.T) {
	r := newTestRegistry(statMissing)
	if _, err := r.Patterns().Add([]string{"/src/*.go"}, globutil.AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if !r.Interested("/src/main.go") {
		t.Error("expected pattern-registered path to be of interest")
	}
	if r.Interested("/other/main.go") {
		t.Error("did not expect unrelated path to be of interest")
	}
}

func TestAddPatternsTracksAndReleasesRunMatchers(t *testing.T) {
	r := newTestRegistry(statMissing)
	if _, err := r.AddPatterns([]string{"/src/*.go"}, globutil.AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if !r.Interested("/src/main.go") {
		t.Error("expected the tracked matcher to be registered")
	}

	r.ReleaseRunMatchers()
	if r.Interested("/src/main.go") {
		t.Error("expected the run's matchers to be released")
	}
	if len(r.runMatchers) != 0 {
		t.Errorf("expected runMatchers to be empty after release, got %d", len(r.runMatchers))
	}
}
