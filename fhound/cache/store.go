package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	internal "github.com/filehound/filehound/fhound"
	"github.com/filehound/filehound/fhound/search"

	_ "github.com/tursodatabase/go-libsql"
)

// Store persists scan results keyed by scope fingerprint. It is a
// performance optimization, never a correctness dependency: every failure
// path degrades to a cache miss (reads) or a logged no-op (writes).
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or initializes the scan cache database at path. A ttl <= 0
// falls back to the default (1 hour).
func Open(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = internal.DefaultCacheTTL
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	s := &Store{db: db, ttl: ttl, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init sets up the cache schema.
func (s *Store) init() error {
	createTables := []string{
		`CREATE TABLE IF NOT EXISTS scan_cache (
			fingerprint TEXT PRIMARY KEY,
			captured_at INTEGER NOT NULL,
			roots_json  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scan_files (
			fingerprint TEXT NOT NULL,
			path        TEXT NOT NULL,
			name        TEXT NOT NULL,
			size        INTEGER NOT NULL,
			mod_time    INTEGER NOT NULL,
			extension   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_files_fingerprint ON scan_files(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_cache_captured ON scan_cache(captured_at)`,
	}
	for _, query := range createTables {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TTL returns the configured entry lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Get returns the cached file listing for the scope if the entry is fresh:
// within TTL and with every root's current mtime matching the snapshot taken
// at capture. Stale rows are left in place (the next Put cleans them up) so
// readers are never blocked on deletes. Any storage error is a miss.
func (s *Store) Get(scope search.Scope) ([]search.FileRecord, bool) {
	fp := scope.Fingerprint()

	var capturedAt int64
	var rootsJSON string
	err := s.db.QueryRow(
		"SELECT captured_at, roots_json FROM scan_cache WHERE fingerprint = ?", fp,
	).Scan(&capturedAt, &rootsJSON)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Warn("Cache read failed, treating as miss", "fingerprint", fp, "error", err)
		}
		return nil, false
	}

	if s.now().Sub(time.Unix(capturedAt, 0)) > s.ttl {
		slog.Debug("Cache entry expired", "fingerprint", fp)
		return nil, false
	}

	var snapshot map[string]int64
	if err := json.Unmarshal([]byte(rootsJSON), &snapshot); err != nil {
		slog.Warn("Cache entry has corrupt root snapshot, treating as miss", "fingerprint", fp, "error", err)
		return nil, false
	}
	for root, capturedMtime := range snapshot {
		info, err := os.Stat(root)
		if err != nil || info.ModTime().UnixNano() != capturedMtime {
			slog.Debug("Cache entry invalidated by root change", "fingerprint", fp, "root", root)
			return nil, false
		}
	}

	rows, err := s.db.Query(
		"SELECT path, name, size, mod_time, extension FROM scan_files WHERE fingerprint = ? ORDER BY rowid", fp,
	)
	if err != nil {
		slog.Warn("Cache read failed, treating as miss", "fingerprint", fp, "error", err)
		return nil, false
	}
	defer rows.Close()

	var records []search.FileRecord
	for rows.Next() {
		var rec search.FileRecord
		var modNanos int64
		if err := rows.Scan(&rec.Path, &rec.Name, &rec.Size, &modNanos, &rec.Extension); err != nil {
			slog.Warn("Cache row scan failed, treating as miss", "fingerprint", fp, "error", err)
			return nil, false
		}
		rec.ModTime = time.Unix(0, modNanos)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("Cache read failed, treating as miss", "fingerprint", fp, "error", err)
		return nil, false
	}

	return records, true
}

// Put atomically replaces the cache entry for the scope: the new rows are
// written and swapped in a single transaction, so concurrent readers observe
// either the old complete entry or the new one, never a partial write.
// Expired entries are lazily cleaned here rather than on the read path.
func (s *Store) Put(scope search.Scope, records []search.FileRecord) error {
	fp := scope.Fingerprint()

	snapshot := make(map[string]int64, len(scope.Roots))
	for _, root := range scope.Normalized().Roots {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("failed to snapshot root %s: %w", root, err)
		}
		snapshot[root] = info.ModTime().UnixNano()
	}
	rootsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal root snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := s.now().Add(-s.ttl).Unix()
	if _, err := tx.Exec(
		"DELETE FROM scan_files WHERE fingerprint IN (SELECT fingerprint FROM scan_cache WHERE captured_at < ?)", cutoff,
	); err != nil {
		return fmt.Errorf("failed to clean expired cache files: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM scan_cache WHERE captured_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to clean expired cache entries: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM scan_files WHERE fingerprint = ?", fp); err != nil {
		return fmt.Errorf("failed to clear cache files: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM scan_cache WHERE fingerprint = ?", fp); err != nil {
		return fmt.Errorf("failed to clear cache entry: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO scan_cache (fingerprint, captured_at, roots_json) VALUES (?, ?, ?)",
		fp, s.now().Unix(), string(rootsJSON),
	); err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO scan_files (fingerprint, path, name, size, mod_time, extension) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(fp, rec.Path, rec.Name, rec.Size, rec.ModTime.UnixNano(), rec.Extension); err != nil {
			return fmt.Errorf("failed to insert cache file row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	slog.Debug("Cache entry written", "fingerprint", fp, "files", len(records))
	return nil
}

// Invalidate drops the cache entry for the scope, if any.
func (s *Store) Invalidate(scope search.Scope) error {
	return s.invalidateFingerprint(scope.Fingerprint())
}

func (s *Store) invalidateFingerprint(fp string) error {
	if _, err := s.db.Exec("DELETE FROM scan_files WHERE fingerprint = ?", fp); err != nil {
		return fmt.Errorf("failed to invalidate cache files: %w", err)
	}
	if _, err := s.db.Exec("DELETE FROM scan_cache WHERE fingerprint = ?", fp); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}
