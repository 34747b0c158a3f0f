package changelog

import (
	"reflect"
	"testing"

	"github.com/alloc/jumpgen/internal/fswatch"
)

type fakeResolver map[string][]string

func (f fakeResolver) CausesFor(path string) []string { return f[path] }

func TestRecordFoldRules(t *testing.T) {
	l := New()

	// A later change never overwrites an add or unlink.
	l.Record("/a", fswatch.Add)
	l.Record("/a", fswatch.Change)
	if got := l.Resolve(fakeResolver{}); got[0].Type != Add {
		t.Errorf("change should not overwrite add, got %v", got[0].Type)
	}

	l = New()
	l.Record("/b", fswatch.Unlink)
	l.Record("/b", fswatch.Change)
	if got := l.Resolve(fakeResolver{}); got[0].Type != Unlink {
		t.Errorf("change should not overwrite unlink, got %v", got[0].Type)
	}

	// Repeated add/unlink is last-value-wins.
	l = New()
	l.Record("/c", fswatch.Unlink)
	l.Record("/c", fswatch.Add)
	if got := l.Resolve(fakeResolver{}); got[0].Type != Add {
		t.Errorf("last add should win over prior unlink, got %v", got[0].Type)
	}

	// addDir/unlinkDir collapse into add/unlink.
	l = New()
	l.Record("/d", fswatch.AddDir)
	if got := l.Resolve(fakeResolver{}); got[0].Type != Add {
		t.Errorf("addDir should collapse to Add, got %v", got[0].Type)
	}
}

func TestHasCriticalAndNonAdds(t *testing.T) {
	l := New()
	l.Record("/a", fswatch.Add)
	l.Record("/b", fswatch.Change)
	l.Record("/c", fswatch.Unlink)

	if l.HasCritical(func(p string) bool { return p == "/b" }) != true {
		t.Error("expected /b to be reported critical")
	}
	if l.HasCritical(func(p string) bool { return p == "/zzz" }) != false {
		t.Error("expected no critical match")
	}

	want := []string{"/b", "/c"}
	if got := l.NonAdds(); !reflect.DeepEqual(got, want) {
		t.Errorf("NonAdds() = %v, want %v", got, want)
	}
}

func TestResolveBlameSubstitution(t *testing.T) {
	l := New()
	l.Record("/generated.out", fswatch.Change)

	resolver := fakeResolver{"/generated.out": {"/source.in"}}
	got := l.Resolve(resolver)

	want := []Change{{Path: "/source.in", Type: Modify}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveDedupesSharedCauses(t *testing.T) {
	l := New()
	l.Record("/gen1", fswatch.Change)
	l.Record("/gen2", fswatch.Change)

	resolver := fakeResolver{
		"/gen1": {"/shared.in"},
		"/gen2": {"/shared.in"},
	}
	got := l.Resolve(resolver)
	if len(got) != 1 || got[0].Path != "/shared.in" {
		t.Errorf("expected shared cause deduped to one entry, got %v", got)
	}
}

func TestClear(t *testing.T) {
	l := New()
	l.Record("/a", fswatch.Add)
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("expected empty log after Clear, got len %d", l.Len())
	}
}
