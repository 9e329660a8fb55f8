// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package hook

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Matcher selects hook names by glob pattern.
//
// Patterns use gobwas/glob with '-' as the separator, so "pre-*" matches
// "pre-boot" but not "pre-set-input-text", while "pre-**" matches both.
type Matcher struct {
	patterns []compiledPattern
}

// NewMatcher compiles patterns. An empty or malformed pattern is an error and
// no matcher is returned.
func NewMatcher(patterns ...string) (*Matcher, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for i, p := range patterns {
		if p == "" {
			return nil, oops.In("hook").With("index", i).Errorf("empty hook pattern")
		}
		g, err := glob.Compile(p, '-')
		if err != nil {
			return nil, oops.In("hook").With("pattern", p).Wrapf(err, "compile hook pattern")
		}
		compiled = append(compiled, compiledPattern{pattern: p, glob: g})
	}
	return &Matcher{patterns: compiled}, nil
}

// Match reports whether name matches any pattern.
func (m *Matcher) Match(name string) bool {
	for _, p := range m.patterns {
		if p.glob.Match(name) {
			return true
		}
	}
	return false
}

// Expand returns the names that match, keeping their order and dropping
// duplicates.
func (m *Matcher) Expand(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if seen[n] || !m.Match(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.pattern
	}
	return out
}
