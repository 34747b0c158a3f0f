package genfs

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// Composed is C9's compose(...factories): a group of independently-running
// engines sharing one event bus, whose watch state is exposed as a union
// and whose lifecycle aggregates across all members.
type Composed struct {
	children []*Engine
	events   *EventBus
}

// Compose builds one child engine per generator, all sharing opts.Events
// (a private bus is created if none is given), and returns the group. Each
// child is otherwise independent: per §5, "each child is independent and
// may not share mutable state."
func Compose(name string, opts Options, gens ...Generator) (*Composed, error) {
	bus := opts.Events
	if bus == nil {
		bus = NewEventBus()
	}
	childOpts := opts
	childOpts.Events = bus

	children := make([]*Engine, 0, len(gens))
	for i, gen := range gens {
		child, err := New(childName(name, i), childOpts, gen)
		if err != nil {
			for _, c := range children {
				_ = c.Destroy(context.Background())
			}
			return nil, err
		}
		children = append(children, child)
	}

	return &Composed{children: children, events: bus}, nil
}

func childName(base string, i int) string {
	if base == "" {
		base = "compose"
	}
	return base + "#" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// Events returns the bus shared by every child.
func (c *Composed) Events() *EventBus { return c.events }

// Status aggregates child lifecycle per §4.9: Running if any child is,
// else Pending if any is, else Finished.
func (c *Composed) Status() Status {
	sawPending := false
	for _, child := range c.children {
		switch child.Status() {
		case Running:
			return Running
		case Pending:
			sawPending = true
		}
	}
	if sawPending {
		return Pending
	}
	return Finished
}

// WatchedFiles merges every child's watched-file set as a union. Each
// child's snapshot is queried from its own goroutine and folded into a
// concurrent map, since §5 treats children as independent and their
// WatchedFiles() calls may otherwise block on each other's internal locks.
func (c *Composed) WatchedFiles() []string {
	union := xsync.NewMapOf[string, struct{}]()
	var wg sync.WaitGroup
	for _, child := range c.children {
		child := child
		wg.Add(1)
		go func() {
			defer wg.Done()
			wi, ok := child.Watcher()
			if !ok {
				return
			}
			for _, p := range wi.WatchedFiles() {
				union.Store(p, struct{}{})
			}
		}()
	}
	wg.Wait()

	out := make([]string, 0, union.Size())
	union.Range(func(p string, _ struct{}) bool {
		out = append(out, p)
		return true
	})
	sort.Strings(out)
	return out
}

// BlamedFiles merges every child's blame mapping as a union of cause sets
// per path. Children are queried concurrently; since two children can
// legitimately blame the same path, the merge for that path uses
// MapOf.Compute so the read-modify-write is atomic across the racing
// goroutines rather than racing on a plain map.
func (c *Composed) BlamedFiles() map[string][]string {
	union := xsync.NewMapOf[string, []string]()
	var wg sync.WaitGroup
	for _, child := range c.children {
		child := child
		wg.Add(1)
		go func() {
			defer wg.Done()
			wi, ok := child.Watcher()
			if !ok {
				return
			}
			for p, causes := range wi.BlamedFiles() {
				causes := causes
				union.Compute(p, func(existing []string, loaded bool) ([]string, bool) {
					if !loaded {
						return causes, false
					}
					return mergeUnique(existing, causes), false
				})
			}
		}()
	}
	wg.Wait()

	out := make(map[string][]string, union.Size())
	union.Range(func(p string, causes []string) bool {
		out[p] = causes
		return true
	})
	return out
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range append(append([]string{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Wait resolves every child's next non-aborted result into one ordered
// slice, matching each child's position among the original generators; a
// result a child settled before Wait was called is not returned.
// Errors from multiple children are joined with go-multierror.
func (c *Composed) Wait(ctx context.Context) ([]interface{}, error) {
	out := make([]interface{}, len(c.children))
	var errsMu sync.Mutex
	var errs error

	// Each child is awaited independently (§5: "each child is independent");
	// errgroup only supplies the fan-out/join, not first-error cancellation,
	// since one child's error must not cut short the others' results.
	var g errgroup.Group
	for i, child := range c.children {
		i, child := i, child
		g.Go(func() error {
			val, err := child.Wait(ctx)
			if err != nil {
				errsMu.Lock()
				errs = multierror.Append(errs, err)
				errsMu.Unlock()
				return nil
			}
			out[i] = val
			return nil
		})
	}
	g.Wait()
	return out, errs
}

// Rerun fans out to every child (§4.9).
func (c *Composed) Rerun() error {
	var errs error
	for _, child := range c.children {
		if err := child.Rerun(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// Destroy fans out to every child (§4.9).
func (c *Composed) Destroy(ctx context.Context) error {
	var errs error
	for _, child := range c.children {
		if err := child.Destroy(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
