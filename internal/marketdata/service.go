package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gurram46/Artha-Agent-sub001/internal/cache"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// ErrClosed is returned by Subscribe after Shutdown.
var ErrClosed = errors.New("marketdata: service is shut down")

// Service is the process-wide quote synchronization core. Construct one
// with New and tear it down with Shutdown.
type Service struct {
	cfg      Config
	upstream provider.Upstream
	cache    *cache.Freshness
	fallback *persist.Fallback
	gate     *gate
	stats    *counters
	logger   *slog.Logger
	now      func() time.Time

	detail singleflight.Group

	mu       sync.Mutex
	registry *registry
	state    State
	gen      uint64
	cancel   context.CancelFunc
	closed   bool
	wg       sync.WaitGroup

	deliverMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFallback sets the persisted snapshot fallback.
func WithFallback(f *persist.Fallback) Option {
	return func(s *Service) {
		s.fallback = f
	}
}

// WithClock overrides time.Now for snapshot timestamps and age checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service reading from upstream. Zero Config fields take
// their DefaultConfig values.
func New(upstream provider.Upstream, cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg.withDefaults(),
		upstream: upstream,
		stats:    &counters{},
		logger:   slog.Default(),
		now:      time.Now,
		registry: newRegistry(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.NewFreshness(s.now)
	s.gate = &gate{
		cfg:      s.cfg,
		upstream: upstream,
		cache:    s.cache,
		fallback: s.fallback,
		stats:    s.stats,
		logger:   s.logger,
		now:      s.now,
		onFetch:  s.fetched,
	}
	return s
}

// fetched fans a completed upstream call out to the subscriptions registered
// at that moment, whoever triggered it. A failure broadcasts the fallback
// snapshot.
func (s *Service) fetched(ctx context.Context, snap provider.Snapshot, err error) {
	s.mu.Lock()
	n := s.registry.len()
	s.mu.Unlock()
	if n == 0 {
		return
	}
	if err != nil {
		snap = s.fallbackSnapshot(ctx, err)
	}
	s.broadcast(snap)
}

// GetTopQuotes returns the best snapshot available: a fresh fetch or fresh
// cache, else the last good snapshot, else a persisted one within the
// persistence window, else an empty snapshot. It never fails; anything other
// than a fetch or a fresh cache hit is marked Degraded.
func (s *Service) GetTopQuotes(ctx context.Context) provider.Snapshot {
	snap, err := s.gate.acquire(ctx)
	if err == nil {
		return snap
	}
	if !errors.Is(err, ErrFetchInProgress) {
		s.logger.Debug("serving fallback snapshot", "error", err)
	}
	return s.fallbackSnapshot(ctx, err)
}

// fallbackSnapshot walks cache, persisted store, then empty.
func (s *Service) fallbackSnapshot(ctx context.Context, cause error) provider.Snapshot {
	if cached, ok := s.cache.Get(); ok {
		degraded := !errors.Is(cause, ErrFetchInProgress) || !s.cache.IsFresh(s.cfg.FreshnessWindow)
		return cached.With(provider.SourceCache, degraded)
	}
	if p, ok := s.fallback.Load(ctx, s.cfg.PersistenceWindow); ok {
		return p
	}
	return provider.EmptySnapshot()
}

// currentSnapshot is the bulk snapshot used by detail lookups, without
// triggering a fetch.
func (s *Service) currentSnapshot(ctx context.Context) provider.Snapshot {
	if cached, ok := s.cache.Get(); ok {
		return cached
	}
	if p, ok := s.fallback.Load(ctx, s.cfg.PersistenceWindow); ok {
		return p
	}
	return provider.EmptySnapshot()
}

// Shutdown stops the poll loop and drops every subscription. It is safe to
// call more than once. An upstream fetch already in flight is left to
// finish.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopLocked()
	s.registry.clear()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("market data service stopped")
}
