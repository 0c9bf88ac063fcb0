// Package history persists a log of completed searches so earlier queries
// can be reviewed and replayed.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/filehound/filehound/fhound/search"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// Entry is one recorded search.
type Entry struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Scope       search.Scope `json:"scope"`
	ResultCount int          `json:"result_count"`
	ExecutedAt  time.Time    `json:"executed_at"`
}

// Store is the searches-so-far log backed by a local database.
type Store struct {
	db *sql.DB
}

// Open opens or initializes the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS search_history (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			scope_json   TEXT NOT NULL,
			result_count INTEGER NOT NULL,
			executed_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_executed ON search_history(executed_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize history schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records one executed search and returns its id.
func (s *Store) Save(kind string, scope search.Scope, resultCount int) (string, error) {
	scopeJSON, err := json.Marshal(scope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search scope: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(
		"INSERT INTO search_history (id, kind, scope_json, result_count, executed_at) VALUES (?, ?, ?, ?, ?)",
		id, kind, string(scopeJSON), resultCount, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save history entry: %w", err)
	}
	return id, nil
}

// List returns the most recent entries, newest first, up to limit.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, kind, scope_json, result_count, executed_at FROM search_history ORDER BY executed_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var scopeJSON string
		var executedAt int64
		if err := rows.Scan(&e.ID, &e.Kind, &scopeJSON, &e.ResultCount, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(scopeJSON), &e.Scope); err != nil {
			return nil, fmt.Errorf("failed to decode history scope: %w", err)
		}
		e.ExecutedAt = time.Unix(executedAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return entries, nil
}

// Delete removes one entry. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM search_history WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

// Clear removes all entries.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM search_history"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
