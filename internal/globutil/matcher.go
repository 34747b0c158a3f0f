package globutil

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

// compileOptions controls how a single glob pattern is turned into a
// predicate. Grounded on lib/ignore.Pattern's foldCase handling and the
// findUp/list restriction in spec §4.1 ("findUp/list predicates disable **
// and path separators").
type compileOptions struct {
	caseInsensitive bool
	segment         bool // true disables ** and embedded separators
}

type cacheKey struct {
	pattern string
	opts    compileOptions
}

// compiledCache avoids recompiling the same glob text on every scan/list
// call across reruns of the same generator body.
var compiledCache, _ = lru.New[cacheKey, glob.Glob](512)

func compileGlob(pattern string, opts compileOptions) (glob.Glob, error) {
	key := cacheKey{pattern: pattern, opts: opts}
	if g, ok := compiledCache.Get(key); ok {
		return g, nil
	}
	text := pattern
	if opts.caseInsensitive {
		text = strings.ToLower(text)
	}
	if opts.segment {
		text = strings.ReplaceAll(text, "**", "*")
	}
	g, err := glob.Compile(text, '/')
	if err != nil {
		return nil, err
	}
	compiledCache.Add(key, g)
	return g, nil
}

// Matcher is a compiled glob predicate with its literal base, depth and the
// event-interest flags described in §3.
type Matcher struct {
	Base                string
	Glob                string
	Depth               int
	HasGlobstar         bool
	IgnoreEmptyNewFiles bool
	AcceptChangeEvents  bool

	predicate func(absPath string) bool
}

// Match reports whether absPath is covered by this matcher: either it is
// exactly the matcher's base directory, or the compiled predicate accepts
// it (§4.2, "match(absPath) returns true iff the path equals any matcher's
// base or satisfies any matcher's predicate").
func (m *Matcher) Match(absPath string) bool {
	if absPath == m.Base {
		return true
	}
	return m.predicate(absPath)
}

// Spec describes one call to Registry.Add for a single pattern.
type Spec struct {
	Root                string
	Pattern             string
	Ignore              []string
	Dot                 bool
	CaseInsensitive     bool
	IgnoreEmptyNewFiles bool
	AcceptChangeEvents  bool
	// Segment restricts the pattern to a single path segment: "**" is
	// treated as "*", and no wildcard crosses a directory boundary. The
	// facade's findUp and list calls do not set it; their patterns are
	// compiled with '/' as separator, so "*" stays within one directory
	// there, but "**" is not disabled.
	Segment bool
}

// Compile builds a Matcher from a Spec, grounded on lib/ignore.Parse's glob
// compilation and lib/fs/basicfs_watch.go's absolute-path filtering.
func Compile(spec Spec) (*Matcher, error) {
	base, tail, hasGlobstar := Split(spec.Pattern)
	absBase := Normalize(spec.Root, base)

	fullPattern := toSlash(Normalize(spec.Root, spec.Pattern))
	opts := compileOptions{caseInsensitive: spec.CaseInsensitive, segment: spec.Segment}

	g, err := compileGlob(fullPattern, opts)
	if err != nil {
		return nil, err
	}

	ignores := make([]glob.Glob, 0, len(spec.Ignore))
	for _, ig := range spec.Ignore {
		absIg := toSlash(Normalize(spec.Root, ig))
		ng, err := compileGlob(absIg, opts)
		if err != nil {
			return nil, err
		}
		ignores = append(ignores, ng)
	}

	dot := spec.Dot
	predicate := func(absPath string) bool {
		slashPath := toSlash(absPath)
		if opts.caseInsensitive {
			slashPath = strings.ToLower(slashPath)
		}
		if !dot && hasHiddenSegment(absBase, absPath) {
			return false
		}
		if !g.Match(slashPath) {
			return false
		}
		for _, ig := range ignores {
			if ig.Match(slashPath) {
				return false
			}
		}
		return true
	}

	return &Matcher{
		Base:                absBase,
		Glob:                tail,
		Depth:               Depth(absBase),
		HasGlobstar:         hasGlobstar,
		IgnoreEmptyNewFiles: spec.IgnoreEmptyNewFiles,
		AcceptChangeEvents:  spec.AcceptChangeEvents,
		predicate:           predicate,
	}, nil
}

// hasHiddenSegment reports whether any path segment of absPath below base
// begins with a dot, implementing the default dotfile exclusion from §4.1.
func hasHiddenSegment(base, absPath string) bool {
	rel, err := filepath.Rel(base, absPath)
	if err != nil || rel == "." {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
