package globutil

import (
	"sort"
	"strings"
)

// AddOptions carries the per-call flags described in §4.2 and §6's scan/
// findUp/list facade options.
type AddOptions struct {
	Root                string
	Ignore              []string
	Dot                 bool
	CaseInsensitive     bool
	IgnoreEmptyNewFiles bool
	AcceptChangeEvents  bool
	Segment             bool
}

// Registry is the ordered collection of compiled matchers from §2/C2:
// "Ordered collection of compiled matchers, indexed by base-directory
// depth; answers 'is this path of interest?'."
type Registry struct {
	matchers []*Matcher
}

// NewRegistry returns an empty pattern registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add compiles patterns and inserts the positive ones into the registry in
// descending-depth order (§4.2). A leading '!' on a pattern moves it into
// the negative set, which is combined with opts.Ignore before compiling
// every positive pattern in this same call.
func (r *Registry) Add(patterns []string, opts AddOptions) ([]*Matcher, error) {
	var positives, negatives []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			negatives = append(negatives, p[1:])
		} else {
			positives = append(positives, p)
		}
	}

	ignore := make([]string, 0, len(opts.Ignore)+len(negatives))
	ignore = append(ignore, opts.Ignore...)
	ignore = append(ignore, negatives...)

	added := make([]*Matcher, 0, len(positives))
	for _, p := range positives {
		m, err := Compile(Spec{
			Root:                opts.Root,
			Pattern:             p,
			Ignore:              ignore,
			Dot:                 opts.Dot,
			CaseInsensitive:     opts.CaseInsensitive,
			IgnoreEmptyNewFiles: opts.IgnoreEmptyNewFiles,
			AcceptChangeEvents:  opts.AcceptChangeEvents,
			Segment:             opts.Segment,
		})
		if err != nil {
			return nil, err
		}
		r.insert(m)
		added = append(added, m)
	}
	return added, nil
}

func (r *Registry) insert(m *Matcher) {
	i := sort.Search(len(r.matchers), func(i int) bool {
		return r.matchers[i].Depth < m.Depth
	})
	r.matchers = append(r.matchers, nil)
	copy(r.matchers[i+1:], r.matchers[i:])
	r.matchers[i] = m
}

// Remove drops the given matchers from the registry, used when a scan/list
// call's base directory is no longer relevant after a soft reset (§3,
// "Lifecycles").
func (r *Registry) Remove(matchers ...*Matcher) {
	if len(matchers) == 0 {
		return
	}
	drop := make(map[*Matcher]struct{}, len(matchers))
	for _, m := range matchers {
		drop[m] = struct{}{}
	}
	kept := r.matchers[:0]
	for _, m := range r.matchers {
		if _, gone := drop[m]; !gone {
			kept = append(kept, m)
		}
	}
	r.matchers = kept
}

// Clear empties the registry, used on hard reset (§4.8).
func (r *Registry) Clear() {
	r.matchers = nil
}

// Match reports whether absPath is of interest to any matcher (§4.2).
func (r *Registry) Match(absPath string) bool {
	for _, m := range r.matchers {
		if m.Match(absPath) {
			return true
		}
	}
	return false
}

// MatchersFor returns, in registry order, every matcher that applies to
// absPath. The recursive watcher (§4.3) uses this to decide whether an add
// or change event should be suppressed.
func (r *Registry) MatchersFor(absPath string) []*Matcher {
	var out []*Matcher
	for _, m := range r.matchers {
		if m.Match(absPath) {
			out = append(out, m)
		}
	}
	return out
}

// Len reports how many matchers are currently registered.
func (r *Registry) Len() int {
	return len(r.matchers)
}
