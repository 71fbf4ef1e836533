// Package sqlite provides a SQLite-backed state.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jpalmerr/statuswatch/internal/state"
)

const (
	backendName = "sqlite"
	timeFormat  = time.RFC3339
)

const schema = `
CREATE TABLE IF NOT EXISTS incident_state (
	source      TEXT PRIMARY KEY,
	incident_id TEXT NOT NULL,
	updated_at  TEXT NOT NULL
)`

// Store keeps one row per source in the incident_state table.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ state.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns every stored row as a mapping.
func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, incident_id FROM incident_state`)
	if err != nil {
		return nil, fmt.Errorf("query incident_state: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var source, id string
		if err := rows.Scan(&source, &id); err != nil {
			return nil, fmt.Errorf("scan incident_state: %w", err)
		}
		m[source] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incident_state: %w", err)
	}
	return m, nil
}

// Commit replaces the table contents with m in a single transaction.
// Rows whose incident id is unchanged keep their updated_at.
func (s *Store) Commit(ctx context.Context, m map[string]string) error {
	if err := s.commit(ctx, m); err != nil {
		return &state.PersistError{Backend: backendName, Err: err}
	}
	return nil
}

func (s *Store) commit(ctx context.Context, m map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing := make(map[string]string)
	rows, err := tx.QueryContext(ctx, `SELECT source, incident_id FROM incident_state`)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	for rows.Next() {
		var source, id string
		if err := rows.Scan(&source, &id); err != nil {
			rows.Close()
			return fmt.Errorf("scan: %w", err)
		}
		existing[source] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}

	for source := range existing {
		if _, ok := m[source]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM incident_state WHERE source = ?`, source); err != nil {
			return fmt.Errorf("delete %q: %w", source, err)
		}
	}

	now := s.now().UTC().Format(timeFormat)
	for source, id := range m {
		if prev, ok := existing[source]; ok && prev == id {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incident_state (source, incident_id, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(source) DO UPDATE SET incident_id = excluded.incident_id, updated_at = excluded.updated_at`,
			source, id, now,
		); err != nil {
			return fmt.Errorf("upsert %q: %w", source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdatedAt returns when the row for source last changed.
func (s *Store) UpdatedAt(ctx context.Context, source string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM incident_state WHERE source = ?`, source).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query updated_at: %w", err)
	}
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse updated_at %q: %w", raw, err)
	}
	return t, true, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
