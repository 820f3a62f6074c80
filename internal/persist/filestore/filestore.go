// Package filestore persists values as one JSON file per key.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
)

type fileRecord struct {
	SavedAt time.Time `json:"saved_at"`
	Value   []byte    `json:"value"`
}

// Store writes each key to <dir>/<key>.json. Writes go through a temp file
// and a rename so readers never see a partial file.
type Store struct {
	dir string
}

var _ persist.Store = (*Store)(nil)

// New creates dir if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return filepath.Join(s.dir, r.Replace(key)+".json")
}

func (s *Store) Save(ctx context.Context, key string, value []byte, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(fileRecord{SavedAt: at.UTC(), Value: value})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, persist.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("read snapshot: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode record: %w", err)
	}
	return rec.Value, rec.SavedAt, nil
}
