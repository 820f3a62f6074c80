// Package sqlitestore persists values in a single SQLite table.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_store (
	key      TEXT PRIMARY KEY,
	value    BLOB NOT NULL,
	saved_at INTEGER NOT NULL
)`

// Store is a persist.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ persist.Store = (*Store)(nil)

// Open opens (or creates) the database at path, along with its parent
// directory, and ensures the table exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot_store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshot_store (key, value, saved_at) VALUES (?, ?, ?)`,
		key, value, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		value   []byte
		savedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, saved_at FROM snapshot_store WHERE key = ?`, key).Scan(&value, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, persist.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load %s: %w", key, err)
	}
	return value, time.UnixMilli(savedAt).UTC(), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
