package search

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash"
)

// Fingerprint derives the deterministic cache key for a scope: a hash over
// the sorted normalized roots and every filter parameter. Two scopes with the
// same fingerprint describe the same search; freshness (TTL, root mtimes) is
// tracked separately by the cache store.
func (s Scope) Fingerprint() string {
	n := s.Normalized()
	d := xxhash.New()

	writeList := func(label string, values []string) {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		io.WriteString(d, label)
		io.WriteString(d, "\x00")
		io.WriteString(d, strings.Join(sorted, "\x00"))
		io.WriteString(d, "\x01")
	}

	writeList("roots", n.Roots)
	writeList("keywords", n.Filters.Keywords)
	writeList("exclude", n.Filters.Exclude)
	writeList("extensions", normalizeExtensions(n.Filters.Extensions))
	writeList("ignore", n.Filters.IgnorePatterns)

	io.WriteString(d, "after\x00")
	io.WriteString(d, strconv.FormatInt(n.Filters.ModifiedAfter.UnixNano(), 10))
	io.WriteString(d, "\x01before\x00")
	io.WriteString(d, strconv.FormatInt(n.Filters.ModifiedBefore.UnixNano(), 10))
	io.WriteString(d, "\x01case\x00")
	io.WriteString(d, strconv.FormatBool(n.Filters.CaseSensitive))

	return fmt.Sprintf("%016x", d.Sum64())
}

// normalizeExtensions lowercases extensions and guarantees a leading dot, so
// "XLSX" and ".xlsx" fingerprint and filter identically.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
