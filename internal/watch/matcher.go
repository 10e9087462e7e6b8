package watch

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// Matcher decides which workspace paths trigger a sync. Paths are
// workspace-relative and slash-separated.
type Matcher struct {
	globs   []glob.Glob
	exclude *ignore.GitIgnore
}

// NewMatcher compiles the watch globs and the gitignore-style exclude
// patterns. A "**/" prefix also matches files at the workspace root.
func NewMatcher(patterns, exclude []string) (*Matcher, error) {
	m := &Matcher{}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid watch glob %q: %w", p, err)
		}
		m.globs = append(m.globs, g)

		if rest, ok := strings.CutPrefix(p, "**/"); ok && rest != "" {
			g, err := glob.Compile(rest, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid watch glob %q: %w", p, err)
			}
			m.globs = append(m.globs, g)
		}
	}

	if len(exclude) > 0 {
		m.exclude = ignore.CompileIgnoreLines(exclude...)
	}

	return m, nil
}

// Empty reports whether no watch glob was configured.
func (m *Matcher) Empty() bool {
	return len(m.globs) == 0
}

// Excluded reports whether rel falls under an exclude pattern.
func (m *Matcher) Excluded(rel string) bool {
	return m.exclude != nil && m.exclude.MatchesPath(rel)
}

// Match reports whether a change to rel should trigger a sync.
func (m *Matcher) Match(rel string) bool {
	if rel == "" || m.Excluded(rel) {
		return false
	}
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
