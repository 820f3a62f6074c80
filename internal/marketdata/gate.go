package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/aggregate"
	"github.com/gurram46/Artha-Agent-sub001/internal/cache"
	"github.com/gurram46/Artha-Agent-sub001/internal/persist"
	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// ErrFetchInProgress is returned by the gate when another caller already
// owns the upstream request. The accompanying snapshot is whatever the
// cache holds.
var ErrFetchInProgress = errors.New("fetch already in progress")

// errCoolingDown marks a request the gate refused without calling the
// upstream because a rate-limit pause is running.
var errCoolingDown = errors.New("cooling down")

const opListTop = "list_top"

// gate guarantees at most one bulk upstream request at a time.
type gate struct {
	cfg      Config
	upstream provider.Upstream
	cache    *cache.Freshness
	fallback *persist.Fallback
	stats    *counters
	logger   *slog.Logger
	now      func() time.Time

	// onFetch runs once per completed upstream call, after the cache is
	// updated. err is nil on success.
	onFetch func(ctx context.Context, snap provider.Snapshot, err error)

	mu            sync.Mutex
	inFlight      bool
	cooldownUntil time.Time
}

type fetchResult struct {
	snap provider.Snapshot
	err  error
}

// acquire returns the current snapshot, fetching it when the cache is not
// fresh. The upstream call is detached from ctx: if ctx ends first, acquire
// returns the cached snapshot and ctx's error while the fetch carries on,
// updates the cache and reports through onFetch.
func (g *gate) acquire(ctx context.Context) (provider.Snapshot, error) {
	g.mu.Lock()
	cached, _ := g.cache.Get()
	if g.cache.IsFresh(g.cfg.FreshnessWindow) {
		g.mu.Unlock()
		g.stats.cacheHits.Add(1)
		return cached.With(provider.SourceCache, false), nil
	}
	if until := g.cooldownUntil; g.now().Before(until) {
		g.mu.Unlock()
		return cached, provider.NewError(provider.KindRateLimited, opListTop, "",
			fmt.Errorf("%w until %s", errCoolingDown, until.Format(time.RFC3339)))
	}
	if g.inFlight {
		g.mu.Unlock()
		g.stats.inFlightRejected.Add(1)
		return cached, ErrFetchInProgress
	}
	g.inFlight = true
	g.mu.Unlock()

	done := make(chan fetchResult, 1)
	go func() {
		snap, err := g.fetch(context.WithoutCancel(ctx))
		done <- fetchResult{snap: snap, err: err}
	}()

	select {
	case r := <-done:
		return r.snap, r.err
	case <-ctx.Done():
		return cached, ctx.Err()
	}
}

// fetch performs the single upstream call. It must only run while the
// caller holds the in-flight slot, which it releases on return. The cache
// is updated under the same lock that releases the slot.
func (g *gate) fetch(ctx context.Context) (provider.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.TopTimeout)
	defer cancel()

	g.stats.upstreamCalls.Add(1)
	start := time.Now()
	quotes, err := g.upstream.ListTop(ctx)
	if err == nil {
		quotes = aggregate.Normalize(quotes, g.now())
		if len(quotes) == 0 {
			err = provider.NewError(provider.KindNoDataAvailable, opListTop, "", errors.New("empty quote list"))
		}
	}
	if err != nil {
		fe := classify(ctx, err)

		g.mu.Lock()
		if fe.Kind == provider.KindRateLimited {
			g.cooldownUntil = g.now().Add(g.cfg.Cooldown)
		}
		g.inFlight = false
		g.mu.Unlock()

		g.stats.recordFailure(fe)
		g.logger.Warn("quote fetch failed",
			"kind", fe.Kind.String(),
			"duration", time.Since(start),
			"error", err,
		)
		g.notify(ctx, provider.Snapshot{}, fe)
		return provider.Snapshot{}, fe
	}

	snap := provider.Snapshot{Quotes: quotes, FetchedAt: g.now(), Source: provider.SourceFetch}

	g.mu.Lock()
	g.cache.Set(snap)
	g.inFlight = false
	g.mu.Unlock()

	g.fallback.Save(snap)
	g.stats.lastFetchAt.Store(snap.FetchedAt.UnixNano())

	g.logger.Info("quote fetch completed",
		"quotes", snap.Len(),
		"duration", time.Since(start),
	)
	g.notify(ctx, snap, nil)
	return snap, nil
}

// notify hands the outcome to onFetch. The fetch deadline may already have
// passed, so the hook gets a context of its own.
func (g *gate) notify(ctx context.Context, snap provider.Snapshot, err error) {
	if g.onFetch == nil {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.TopTimeout)
	defer cancel()
	g.onFetch(hctx, snap, err)
}

// classify turns any upstream error into a FetchError. A fetch that ran
// out of time is a timeout unless the provider said it was rate limited.
func classify(ctx context.Context, err error) *provider.FetchError {
	var fe *provider.FetchError
	if !errors.As(err, &fe) {
		fe = provider.NewError(provider.KindUnknown, opListTop, "", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && fe.Kind != provider.KindRateLimited && fe.Kind != provider.KindTimeout {
		fe = provider.NewError(provider.KindTimeout, opListTop, "", err)
	}
	return fe
}

// cooldownRemaining returns how long the rate-limit pause still lasts.
func (g *gate) cooldownRemaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d := g.cooldownUntil.Sub(g.now()); d > 0 {
		return d
	}
	return 0
}

func (g *gate) cooldownDeadline() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldownUntil
}
