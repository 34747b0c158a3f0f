package globutil

import (
	"path/filepath"
	"testing"
)

func TestMatcherBasic(t *testing.T) {
	dir := t.TempDir()
	m, err := Compile(Spec{Root: dir, Pattern: "*.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match(filepath.Join(dir, "a.txt")) {
		t.Error("expected a.txt to match *.txt")
	}
	if m.Match(filepath.Join(dir, "a.go")) {
		t.Error("did not expect a.go to match *.txt")
	}
}

func TestMatcherDotfilesExcludedByDefault(t *testing.T) {
	dir := t.TempDir()
	m, err := Compile(Spec{Root: dir, Pattern: "**/*.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if m.Match(filepath.Join(dir, ".hidden", "a.txt")) {
		t.Error("dotfile segment should be excluded by default")
	}

	dotted, err := Compile(Spec{Root: dir, Pattern: "**/*.txt", Dot: true})
	if err != nil {
		t.Fatal(err)
	}
	if !dotted.Match(filepath.Join(dir, ".hidden", "a.txt")) {
		t.Error("Dot:true should include dotfile segments")
	}
}

func TestMatcherIgnore(t *testing.T) {
	dir := t.TempDir()
	m, err := Compile(Spec{Root: dir, Pattern: "*.txt", Ignore: []string{"skip.txt"}})
	if err != nil {
		t.Fatal(err)
	}
	if m.Match(filepath.Join(dir, "skip.txt")) {
		t.Error("ignore pattern should exclude skip.txt")
	}
	if !m.Match(filepath.Join(dir, "keep.txt")) {
		t.Error("keep.txt should still match")
	}
}

func TestMatcherSegmentDisablesGlobstarAndSeparators(t *testing.T) {
	dir := t.TempDir()
	m, err := Compile(Spec{Root: dir, Pattern: "*.txt", Segment: true})
	if err != nil {
		t.Fatal(err)
	}
	if m.Match(filepath.Join(dir, "sub", "a.txt")) {
		t.Error("segment matcher should not cross a directory boundary")
	}
}

func TestCompiledCacheReusesGlob(t *testing.T) {
	dir := t.TempDir()
	if _, err := Compile(Spec{Root: dir, Pattern: "*.txt"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(Spec{Root: dir, Pattern: "*.txt"}); err != nil {
		t.Fatal(err)
	}
	key := cacheKey{pattern: toSlash(Normalize(dir, "*.txt")), opts: compileOptions{}}
	if _, ok := compiledCache.Get(key); !ok {
		t.Error("expected compiled glob to be cached")
	}
}
