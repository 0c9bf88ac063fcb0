package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Scanner walks directory trees and applies the scope filters, reporting
// progress and honoring cooperative cancellation between directory
// expansions. Results are unordered; sorting is a presentation concern of the
// caller.
type Scanner struct {
	maxWorkers int
	cache      CacheStore
	scanHook   func(root string)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers overrides the traversal pool size.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithCache attaches a cache store consulted before a live traversal and
// updated after a successful one.
func WithCache(store CacheStore) Option {
	return func(s *Scanner) { s.cache = store }
}

// WithScanHook installs a callback fired once per live (non-cached) root
// traversal. Used by tests to verify cache hits skip the filesystem.
func WithScanHook(fn func(root string)) Option {
	return func(s *Scanner) { s.scanHook = fn }
}

// NewScanner creates a scanner with a worker count sized for I/O bound
// directory enumeration: CPU cores * 2, clamped for responsiveness and
// against resource exhaustion.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		maxWorkers: min(max(runtime.NumCPU()*2, 4), 32),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scanState is the shared mutable state of one traversal.
type scanState struct {
	mu      sync.Mutex
	records []FileRecord
	issues  []Issue
	seen    map[string]struct{}
}

func (st *scanState) addRecords(batch []FileRecord) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	added := 0
	for _, rec := range batch {
		if _, dup := st.seen[rec.Path]; dup {
			continue
		}
		st.seen[rec.Path] = struct{}{}
		st.records = append(st.records, rec)
		added++
	}
	return added
}

func (st *scanState) addIssue(path string, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.issues = append(st.issues, Issue{Path: path, Error: err.Error()})
}

// Scan traverses the scope roots breadth-first and returns the matching file
// records. A missing root is fatal; unreadable directories are recorded as
// issues and skipped. If the caller cancels mid-scan, the partial results are
// returned together with ErrCancelled.
func (s *Scanner) Scan(ctx context.Context, scope Scope, sink ProgressSink) ([]FileRecord, []Issue, error) {
	if sink == nil {
		sink = nopSink{}
	}
	scope = scope.Normalized()

	if len(scope.Roots) == 0 {
		return nil, nil, fmt.Errorf("%w: scope has no roots", ErrScopeRoot)
	}
	for _, root := range scope.Roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrScopeRoot, root, err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("%w: %s: not a directory", ErrScopeRoot, root)
		}
	}

	if s.cache != nil {
		if records, ok := s.cache.Get(scope); ok {
			slog.Debug("Scan served from cache",
				"fingerprint", scope.Fingerprint(),
				"files", len(records))
			sink.FilesMatched(len(records))
			return records, nil, nil
		}
	}

	m := newMatcher(scope.Filters)
	state := &scanState{seen: make(map[string]struct{})}
	index := newPathIndex()
	cancelled := false

	currentLevel := make([]string, 0, len(scope.Roots))
	for _, root := range scope.Roots {
		if index.covered(root) {
			continue
		}
		index.visit(root)
		currentLevel = append(currentLevel, root)
		if s.scanHook != nil {
			s.scanHook(root)
		}
	}

	// Process directories level by level; each level shares one bounded
	// pool so concurrency never exceeds maxWorkers regardless of fan-out.
	for len(currentLevel) > 0 && !cancelled {
		nextLevel := make([]string, 0)
		var nextMu sync.Mutex

		levelPool := pool.New().WithMaxGoroutines(s.maxWorkers).WithContext(ctx)

		for _, dir := range currentLevel {
			if sink.Cancelled() || ctx.Err() != nil {
				cancelled = true
				break
			}
			levelPool.Go(func(ctx context.Context) error {
				if sink.Cancelled() || ctx.Err() != nil {
					return nil
				}
				children, matched := s.processDirectory(dir, m, state, index)
				sink.DirScanned()
				if matched > 0 {
					sink.FilesMatched(matched)
				}
				if len(children) > 0 {
					nextMu.Lock()
					nextLevel = append(nextLevel, children...)
					nextMu.Unlock()
				}
				return nil
			})
		}

		if err := levelPool.Wait(); err != nil && ctx.Err() == nil {
			slog.Warn("Traversal pool reported error", "error", err)
		}

		currentLevel = nextLevel
	}

	if cancelled || sink.Cancelled() {
		return state.records, state.issues, ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return state.records, state.issues, ErrCancelled
	}

	if s.cache != nil {
		if err := s.cache.Put(scope, state.records); err != nil {
			// The cache is an optimization, not a correctness
			// dependency: a write failure never fails the scan.
			slog.Warn("Failed to update scan cache",
				"fingerprint", scope.Fingerprint(),
				"error", err)
		}
	}

	slog.Debug("Scan completed",
		"roots", len(scope.Roots),
		"files", len(state.records),
		"issues", len(state.issues))

	return state.records, state.issues, nil
}

// processDirectory enumerates one directory with a single ReadDir call,
// applies the filters, and returns the child directories to expand next.
func (s *Scanner) processDirectory(dir string, m *matcher, state *scanState, index *pathIndex) (children []string, matched int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Permission denied, transient I/O, vanished directory: record
		// and keep going.
		slog.Warn("Skipping unreadable directory", "path", dir, "error", err)
		state.addIssue(dir, err)
		return nil, 0
	}

	var batch []FileRecord
	for _, entry := range entries {
		childPath := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if m.excludeDir(entry.Name()) || m.ignoredPath(childPath) {
				continue
			}
			// visit guards against overlapping roots and path cycles;
			// a directory is enumerated at most once per scan.
			if index.visit(childPath) {
				children = append(children, childPath)
			}
			continue
		}

		if !m.matchName(entry.Name()) || !m.allowExtension(entry.Name()) || m.ignoredPath(childPath) {
			continue
		}

		// Name filters passed; only now pay for the stat.
		info, err := entry.Info()
		if err != nil {
			state.addIssue(childPath, err)
			continue
		}
		if !m.allowModTime(info.ModTime()) {
			continue
		}

		batch = append(batch, FileRecord{
			Path:      childPath,
			Name:      entry.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: strings.ToLower(filepath.Ext(entry.Name())),
		})
	}

	matched = state.addRecords(batch)
	return children, matched
}
