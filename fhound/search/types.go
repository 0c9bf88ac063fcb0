package search

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrCancelled is returned by long-running operations that observed a
// cooperative cancellation request. It is a normal terminal outcome, not a
// failure.
var ErrCancelled = errors.New("search cancelled")

// ErrScopeRoot marks a scope whose roots cannot be scanned: empty, missing
// from disk, or not a directory. Unlike per-directory issues it fails the
// whole search.
var ErrScopeRoot = errors.New("invalid scope root")

// Filters holds the per-file selection criteria of a search scope.
type Filters struct {
	// Keywords a filename must contain (any of them). Empty matches all.
	Keywords []string `json:"keywords,omitempty"`
	// Exclude keywords: a file or directory whose name contains one of
	// these is skipped.
	Exclude []string `json:"exclude,omitempty"`
	// Extensions allowlist, e.g. [".xlsx", ".pdf"]. Empty allows all.
	Extensions []string `json:"extensions,omitempty"`
	// ModifiedAfter/ModifiedBefore bound the modification time range.
	// Zero values mean unbounded.
	ModifiedAfter  time.Time `json:"modified_after,omitempty"`
	ModifiedBefore time.Time `json:"modified_before,omitempty"`
	CaseSensitive  bool      `json:"case_sensitive,omitempty"`
	// IgnorePatterns are gitignore-style patterns excluding whole paths.
	IgnorePatterns []string `json:"ignore_patterns,omitempty"`
}

// Scope identifies what a filename search covers: a set of root directories
// plus the filter parameters. A Scope is immutable once a search starts and
// identifies a cache entry via Fingerprint.
type Scope struct {
	Roots   []string `json:"roots"`
	Filters Filters  `json:"filters"`
}

// Normalized returns a copy of the scope with absolute, cleaned, sorted and
// deduplicated roots. A root nested inside another root is dropped since its
// subtree is already covered.
func (s Scope) Normalized() Scope {
	roots := make([]string, 0, len(s.Roots))
	for _, root := range s.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = filepath.Clean(root)
		}
		roots = append(roots, abs)
	}
	sort.Strings(roots)

	deduped := roots[:0]
	for _, root := range roots {
		covered := false
		for _, kept := range deduped {
			if root == kept || strings.HasPrefix(root, kept+string(filepath.Separator)) {
				covered = true
				break
			}
		}
		if !covered {
			deduped = append(deduped, root)
		}
	}

	out := s
	out.Roots = append([]string(nil), deduped...)
	return out
}

// FileRecord describes one file found by the scanner. It is a value type,
// freely copied and shared.
type FileRecord struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
	Extension string    `json:"extension"`
}

// ContentMatch describes one file whose extracted text matched at least one
// keyword.
type ContentMatch struct {
	Path     string   `json:"path"`
	Keywords []string `json:"keywords"`
	Snippet  string   `json:"snippet,omitempty"`
}

// Issue records a recoverable problem encountered during a search: a skipped
// directory or a file that could not be processed. Issues never fail a job;
// they ride along with the results.
type Issue struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ProgressSink receives scanner progress. Implementations must be safe for
// concurrent use; the scanner calls it from multiple worker goroutines.
type ProgressSink interface {
	// DirScanned is called after a directory has been fully enumerated.
	DirScanned()
	// FilesMatched reports how many files the directory contributed.
	FilesMatched(n int)
	// Cancelled reports whether the caller requested cancellation. The
	// scanner checks it between directory expansions.
	Cancelled() bool
}

// CacheStore is the persistence contract the scanner consults before and
// after a live traversal. A nil store, a miss, or a storage error all mean
// the same thing to the scanner: do a live scan.
type CacheStore interface {
	Get(scope Scope) ([]FileRecord, bool)
	Put(scope Scope, records []FileRecord) error
}

// nopSink is used when the caller does not care about progress.
type nopSink struct{}

func (nopSink) DirScanned()      {}
func (nopSink) FilesMatched(int) {}
func (nopSink) Cancelled() bool  { return false }
