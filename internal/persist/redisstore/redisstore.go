// Package redisstore persists values as Redis hashes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/go-redis/redis/v8"

	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
)

const (
	fieldValue   = "value"
	fieldSavedAt = "saved_at"
)

// Store keeps each key as a hash with a value field and a saved_at field
// holding Unix milliseconds.
type Store struct {
	client *redis.Client
	prefix string
}

var _ persist.Store = (*Store)(nil)

// New connects to addr and pings it. prefix is prepended to every key.
func New(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Store{client: rdb, prefix: prefix}, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Save(ctx context.Context, key string, value []byte, at time.Time) error {
	err := s.client.HSet(ctx, s.key(key),
		fieldValue, value,
		fieldSavedAt, at.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, time.Time, error) {
	res, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, persist.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	value, ok := res[fieldValue]
	if !ok {
		return nil, time.Time{}, persist.ErrNotFound
	}
	ms, err := strconv.ParseInt(res[fieldSavedAt], 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse saved_at for %s: %w", key, err)
	}
	return []byte(value), time.UnixMilli(ms).UTC(), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
