// Package pgstore persists values in a PostgreSQL table through pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
)

// Config holds the connection settings.
type Config struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Name     string `json:"name" yaml:"name"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
	MinConns int    `json:"min_conns" yaml:"min_conns"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_store (
	key      TEXT PRIMARY KEY,
	value    BYTEA NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`

// BuildConnString renders cfg as a postgres:// URL. The user info is
// escaped by net/url; an empty password is left out, a zero port becomes
// 5432 and an empty SSL mode becomes prefer.
func BuildConnString(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	return u.String()
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store is a persist.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ persist.Store = (*Store)(nil)

// New connects and ensures the table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create snapshot_store: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Save(ctx context.Context, key string, value []byte, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshot_store (key, value, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, saved_at = EXCLUDED.saved_at`,
		key, value, at.UTC())
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		value   []byte
		savedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT value, saved_at FROM snapshot_store WHERE key = $1`, key).Scan(&value, &savedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, persist.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load %s: %w", key, err)
	}
	return value, savedAt.UTC(), nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}
