package search

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func recordNames(records []FileRecord) []string {
	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.Name)
	}
	sort.Strings(names)
	return names
}

// memoryCache is an in-memory CacheStore for scanner tests.
type memoryCache struct {
	entries map[string][]FileRecord
	puts    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]FileRecord)}
}

func (c *memoryCache) Get(scope Scope) ([]FileRecord, bool) {
	records, ok := c.entries[scope.Fingerprint()]
	return records, ok
}

func (c *memoryCache) Put(scope Scope, records []FileRecord) error {
	c.entries[scope.Fingerprint()] = records
	c.puts++
	return nil
}

// cancelAfterSink flips to cancelled once n directories have been scanned.
type cancelAfterSink struct {
	dirs  atomic.Int64
	after int64
}

func (s *cancelAfterSink) DirScanned()      { s.dirs.Add(1) }
func (s *cancelAfterSink) FilesMatched(int) {}
func (s *cancelAfterSink) Cancelled() bool {
	return s.after > 0 && s.dirs.Load() >= s.after
}

func TestScanFindsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report_2024.xlsx"))
	mkFile(t, filepath.Join(dir, "sub", "report_draft.docx"))
	mkFile(t, filepath.Join(dir, "notes.txt"))

	s := NewScanner(WithWorkers(2))
	records, issues, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"report"}},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, []string{"report_2024.xlsx", "report_draft.docx"}, recordNames(records))
}

func TestScanKeywordsAreOrCombined(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "invoice.pdf"))
	mkFile(t, filepath.Join(dir, "report.pdf"))
	mkFile(t, filepath.Join(dir, "photo.png"))

	s := NewScanner()
	records, _, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"invoice", "report"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice.pdf", "report.pdf"}, recordNames(records))
}

func TestScanFilters(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report_2024.xlsx"))
	mkFile(t, filepath.Join(dir, "report_old.xlsx"))
	mkFile(t, filepath.Join(dir, "report_notes.txt"))

	old := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "report_old.xlsx"), old, old))

	s := NewScanner()
	records, _, err := s.Scan(context.Background(), Scope{
		Roots: []string{dir},
		Filters: Filters{
			Keywords:      []string{"report"},
			Extensions:    []string{"xlsx"},
			ModifiedAfter: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}, nil)
	require.NoError(t, err)

	// report_notes.txt fails the extension filter, report_old.xlsx the
	// date filter.
	assert.Equal(t, []string{"report_2024.xlsx"}, recordNames(records))
}

func TestScanExcludePrunesDirectories(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report.txt"))
	mkFile(t, filepath.Join(dir, "backup", "report_copy.txt"))
	mkFile(t, filepath.Join(dir, "report_backup.txt"))

	s := NewScanner()
	records, _, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"report"}, Exclude: []string{"backup"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.txt"}, recordNames(records))
}

func TestScanIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report.txt"))
	mkFile(t, filepath.Join(dir, "node_modules", "report.txt"))
	mkFile(t, filepath.Join(dir, "report.tmp"))

	s := NewScanner()
	records, _, err := s.Scan(context.Background(), Scope{
		Roots: []string{dir},
		Filters: Filters{
			Keywords:       []string{"report"},
			IgnorePatterns: []string{"node_modules/", "*.tmp"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.txt"}, recordNames(records))
}

func TestScanCaseSensitivity(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "Report.txt"))
	mkFile(t, filepath.Join(dir, "report.txt"))

	s := NewScanner()

	records, _, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"Report"}, CaseSensitive: true},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Report.txt"}, recordNames(records))

	records, _, err = s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"Report"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Report.txt", "report.txt"}, recordNames(records))
}

func TestScanEmptyResultIsSuccess(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "unrelated.txt"))

	s := NewScanner()
	records, issues, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"nomatch"}},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, issues)
}

func TestScanMissingRootIsFatal(t *testing.T) {
	s := NewScanner()
	_, _, err := s.Scan(context.Background(), Scope{
		Roots: []string{filepath.Join(t.TempDir(), "does-not-exist")},
	}, nil)
	assert.ErrorIs(t, err, ErrScopeRoot)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestScanNoRoots(t *testing.T) {
	s := NewScanner()
	_, _, err := s.Scan(context.Background(), Scope{}, nil)
	assert.ErrorIs(t, err, ErrScopeRoot)
}

func TestScanOverlappingRootsDeduplicate(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "sub", "report.txt"))

	s := NewScanner()
	records, _, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir, filepath.Join(dir, "sub")},
		Filters: Filters{Keywords: []string{"report"}},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestScanCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 30; i++ {
		mkFile(t, filepath.Join(dir, string(rune('a'+i%26))+"dir", "report.txt"))
	}

	s := NewScanner(WithWorkers(1))
	sink := &cancelAfterSink{after: 3}
	_, _, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"report"}},
	}, sink)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestScanContextCancellation(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report.txt"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner()
	_, _, err := s.Scan(ctx, Scope{Roots: []string{dir}}, nil)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestScanCacheHitSkipsTraversal(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report.txt"))

	var liveScans atomic.Int64
	cache := newMemoryCache()
	s := NewScanner(
		WithCache(cache),
		WithScanHook(func(string) { liveScans.Add(1) }),
	)
	scope := Scope{Roots: []string{dir}, Filters: Filters{Keywords: []string{"report"}}}

	first, _, err := s.Scan(context.Background(), scope, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(1), liveScans.Load())
	assert.Equal(t, 1, cache.puts)

	second, _, err := s.Scan(context.Background(), scope, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// Served from the cache: no new live traversal, no new write.
	assert.Equal(t, int64(1), liveScans.Load())
	assert.Equal(t, 1, cache.puts)
}

func TestScanCancelledRunDoesNotPopulateCache(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		mkFile(t, filepath.Join(dir, string(rune('a'+i))+"dir", "report.txt"))
	}

	cache := newMemoryCache()
	s := NewScanner(WithWorkers(1), WithCache(cache))
	sink := &cancelAfterSink{after: 1}

	_, _, err := s.Scan(context.Background(), Scope{
		Roots:   []string{dir},
		Filters: Filters{Keywords: []string{"report"}},
	}, sink)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, cache.puts)
}

func TestScanEndToEndScenario(t *testing.T) {
	dir := t.TempDir()
	mkFile(t, filepath.Join(dir, "report_2024.xlsx"))
	mkFile(t, filepath.Join(dir, "draft_old.xlsx"))
	mkFile(t, filepath.Join(dir, "notes.txt"))

	old := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "draft_old.xlsx"), old, old))

	s := NewScanner()
	records, issues, err := s.Scan(context.Background(), Scope{
		Roots: []string{dir},
		Filters: Filters{
			Keywords:      []string{"report", "draft"},
			Extensions:    []string{".xlsx"},
			ModifiedAfter: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, []string{"report_2024.xlsx"}, recordNames(records))
}
