package search

import (
	"path/filepath"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// matcher holds the pre-folded filter state for one scan, so case folding and
// extension normalization happen once instead of per file.
type matcher struct {
	keywords      []string
	exclude       []string
	extensions    map[string]struct{}
	after, before time.Time
	caseSensitive bool
	ignored       *ignore.GitIgnore
}

func newMatcher(f Filters) *matcher {
	m := &matcher{
		after:         f.ModifiedAfter,
		before:        f.ModifiedBefore,
		caseSensitive: f.CaseSensitive,
	}

	fold := func(values []string) []string {
		out := make([]string, 0, len(values))
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if !f.CaseSensitive {
				v = strings.ToLower(v)
			}
			out = append(out, v)
		}
		return out
	}

	m.keywords = fold(f.Keywords)
	m.exclude = fold(f.Exclude)

	exts := normalizeExtensions(f.Extensions)
	if len(exts) > 0 {
		m.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			m.extensions[ext] = struct{}{}
		}
	}

	if len(f.IgnorePatterns) > 0 {
		m.ignored = ignore.CompileIgnoreLines(f.IgnorePatterns...)
	}

	return m
}

// matchName reports whether a filename passes the keyword filters: it must
// contain at least one include keyword (or there are none) and no exclude
// keyword.
func (m *matcher) matchName(name string) bool {
	if !m.caseSensitive {
		name = strings.ToLower(name)
	}
	for _, kw := range m.exclude {
		if strings.Contains(name, kw) {
			return false
		}
	}
	if len(m.keywords) == 0 {
		return true
	}
	for _, kw := range m.keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// excludeDir reports whether a directory should be pruned from traversal
// because its name contains an exclude keyword.
func (m *matcher) excludeDir(name string) bool {
	if len(m.exclude) == 0 {
		return false
	}
	if !m.caseSensitive {
		name = strings.ToLower(name)
	}
	for _, kw := range m.exclude {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func (m *matcher) allowExtension(name string) bool {
	if m.extensions == nil {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := m.extensions[ext]
	return ok
}

func (m *matcher) allowModTime(t time.Time) bool {
	if !m.after.IsZero() && t.Before(m.after) {
		return false
	}
	if !m.before.IsZero() && t.After(m.before) {
		return false
	}
	return true
}

func (m *matcher) ignoredPath(path string) bool {
	return m.ignored != nil && m.ignored.MatchesPath(path)
}
