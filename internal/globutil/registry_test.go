package globutil

import (
	"path/filepath"
	"testing"
)

func TestRegistryOrdersByDescendingDepth(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add([]string{"/a/*.go", "/a/b/c/*.go", "/a/b/*.go"}, AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 matchers, got %d", r.Len())
	}
	depths := make([]int, r.Len())
	for i, m := range r.MatchersFor(filepath.Clean("/a/b/c/x.go")) {
		depths[i] = m.Depth
	}
	for i := 1; i < len(depths); i++ {
		if depths[i] > depths[i-1] {
			t.Fatalf("matchers not in descending depth order: %v", depths)
		}
	}
}

func TestRegistryNegation(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add([]string{"/a/*.go", "!/a/skip.go"}, AddOptions{}); err != nil {
		t.Fatal(err)
	}
	if r.Match(filepath.Clean("/a/skip.go")) {
		t.Error("negated pattern should exclude /a/skip.go")
	}
	if !r.Match(filepath.Clean("/a/keep.go")) {
		t.Error("/a/keep.go should still match")
	}
}

func TestRegistryRemoveAndClear(t *testing.T) {
	r := NewRegistry()
	added, err := r.Add([]string{"/a/*.go"}, AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	r.Remove(added...)
	if r.Len() != 0 {
		t.Fatalf("expected 0 matchers after Remove, got %d", r.Len())
	}

	if _, err := r.Add([]string{"/a/*.go"}, AddOptions{}); err != nil {
		t.Fatal(err)
	}
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("expected 0 matchers after Clear, got %d", r.Len())
	}
}
