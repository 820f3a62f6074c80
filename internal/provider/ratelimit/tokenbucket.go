package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// TokenBucket is a token bucket limiter.
//   - rate: tokens per second
//   - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewTokenBucket starts full so the first burst calls pass immediately.
func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     time.Now(),
	}
}

// PerMinute builds a bucket from a requests-per-minute budget.
func PerMinute(requests, burst int) *TokenBucket {
	return NewTokenBucket(float64(requests)/60.0, burst)
}

// Wait blocks until one token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Limited gates every Upstream call on a shared TokenBucket.
type Limited struct {
	Upstream provider.Upstream
	Bucket   *TokenBucket
}

var _ provider.Upstream = (*Limited)(nil)

func (l *Limited) wait(ctx context.Context, op, id string) error {
	if l.Bucket == nil {
		return nil
	}
	if err := l.Bucket.Wait(ctx); err != nil {
		return provider.NewError(provider.KindTimeout, op, id, err)
	}
	return nil
}

func (l *Limited) ListTop(ctx context.Context) ([]provider.Quote, error) {
	if err := l.wait(ctx, "list_top", ""); err != nil {
		return nil, err
	}
	return l.Upstream.ListTop(ctx)
}

func (l *Limited) GetDetail(ctx context.Context, id string) (provider.Quote, error) {
	if err := l.wait(ctx, "get_detail", id); err != nil {
		return provider.Quote{}, err
	}
	return l.Upstream.GetDetail(ctx, id)
}

func (l *Limited) GetSeries(ctx context.Context, id string, window provider.Window) ([]provider.SeriesPoint, error) {
	if err := l.wait(ctx, "get_series", id); err != nil {
		return nil, err
	}
	return l.Upstream.GetSeries(ctx, id, window)
}
