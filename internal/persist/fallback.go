package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// SnapshotKey is the store key the bulk snapshot lives under.
const SnapshotKey = "quotes:top"

const defaultSaveTimeout = 10 * time.Second

// record is the persisted form of a Snapshot. Source and Degraded are
// decided on load, so they are not stored.
type record struct {
	Quotes    []provider.Quote `json:"quotes"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// Fallback wraps a Store with the snapshot codec. A nil Store turns every
// operation into a no-op.
type Fallback struct {
	store       Store
	logger      *slog.Logger
	now         func() time.Time
	saveTimeout time.Duration

	wg sync.WaitGroup
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) FallbackOption {
	return func(f *Fallback) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithClock overrides time.Now for age checks.
func WithClock(now func() time.Time) FallbackOption {
	return func(f *Fallback) {
		if now != nil {
			f.now = now
		}
	}
}

// WithSaveTimeout bounds each background save.
func WithSaveTimeout(d time.Duration) FallbackOption {
	return func(f *Fallback) {
		if d > 0 {
			f.saveTimeout = d
		}
	}
}

// NewFallback returns a Fallback over store.
func NewFallback(store Store, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
		saveTimeout: defaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Save writes s in the background. Failures are logged and dropped; the
// caller never waits on storage.
func (f *Fallback) Save(s provider.Snapshot) {
	if f == nil || f.store == nil || s.IsEmpty() {
		return
	}
	payload, err := json.Marshal(record{Quotes: s.Quotes, FetchedAt: s.FetchedAt})
	if err != nil {
		f.logger.Warn("snapshot encode failed", "error", err)
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), f.saveTimeout)
		defer cancel()
		if err := f.store.Save(ctx, SnapshotKey, payload, s.FetchedAt); err != nil {
			err = provider.NewError(provider.KindPersistenceUnavailable, "persist_save", "", err)
			f.logger.Warn("snapshot save failed", "error", err)
			return
		}
		f.logger.Debug("snapshot saved", "quotes", s.Len(), "fetched_at", s.FetchedAt)
	}()
}

// Flush waits for pending saves or until ctx is done.
func (f *Fallback) Flush(ctx context.Context) error {
	if f == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load returns the persisted snapshot when it is at most maxAge old. Any
// storage or decode failure is logged and reported as not found.
func (f *Fallback) Load(ctx context.Context, maxAge time.Duration) (provider.Snapshot, bool) {
	s, age, err := f.Peek(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.logger.Warn("snapshot load failed", "error", err)
		}
		return provider.Snapshot{}, false
	}
	if age > maxAge {
		f.logger.Debug("persisted snapshot too old", "age", age, "max_age", maxAge)
		return provider.Snapshot{}, false
	}
	return s, true
}

// Peek returns the persisted snapshot regardless of age, together with how
// old it is.
func (f *Fallback) Peek(ctx context.Context) (provider.Snapshot, time.Duration, error) {
	if f == nil || f.store == nil {
		return provider.Snapshot{}, 0, ErrNotFound
	}
	raw, at, err := f.store.Load(ctx, SnapshotKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return provider.Snapshot{}, 0, err
		}
		return provider.Snapshot{}, 0, provider.NewError(provider.KindPersistenceUnavailable, "persist_load", "", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return provider.Snapshot{}, 0, provider.NewError(provider.KindPersistenceUnavailable, "persist_load", "", fmt.Errorf("decoding snapshot: %w", err))
	}
	if len(rec.Quotes) == 0 {
		return provider.Snapshot{}, 0, ErrNotFound
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = at
	}
	s := provider.Snapshot{Quotes: rec.Quotes, FetchedAt: rec.FetchedAt, Source: provider.SourcePersisted, Degraded: true}
	return s, f.now().Sub(at), nil
}
