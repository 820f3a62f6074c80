package marketdata_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// fakeUpstream counts calls and answers from per-call functions.
type fakeUpstream struct {
	listCalls   atomic.Int32
	detailCalls atomic.Int32
	seriesCalls atomic.Int32

	mu     sync.Mutex
	list   func(ctx context.Context, n int) ([]provider.Quote, error)
	detail func(ctx context.Context, id string) (provider.Quote, error)
	series func(ctx context.Context, id string, w provider.Window) ([]provider.SeriesPoint, error)
}

func (f *fakeUpstream) ListTop(ctx context.Context) ([]provider.Quote, error) {
	n := int(f.listCalls.Add(1))
	f.mu.Lock()
	fn := f.list
	f.mu.Unlock()
	if fn == nil {
		return quotes(10), nil
	}
	return fn(ctx, n)
}

func (f *fakeUpstream) GetDetail(ctx context.Context, id string) (provider.Quote, error) {
	f.detailCalls.Add(1)
	f.mu.Lock()
	fn := f.detail
	f.mu.Unlock()
	if fn == nil {
		return provider.Quote{ID: id}, nil
	}
	return fn(ctx, id)
}

func (f *fakeUpstream) GetSeries(ctx context.Context, id string, w provider.Window) ([]provider.SeriesPoint, error) {
	f.seriesCalls.Add(1)
	f.mu.Lock()
	fn := f.series
	f.mu.Unlock()
	if fn == nil {
		return []provider.SeriesPoint{{Time: time.Unix(1_700_000_000, 0), Close: decimal.NewFromInt(1)}}, nil
	}
	return fn(ctx, id, w)
}

func (f *fakeUpstream) setList(fn func(ctx context.Context, n int) ([]provider.Quote, error)) {
	f.mu.Lock()
	f.list = fn
	f.mu.Unlock()
}

func quotes(n int) []provider.Quote {
	out := make([]provider.Quote, n)
	for i := range out {
		out[i] = provider.Quote{ID: fmt.Sprintf("SYM%02d", i), Price: decimal.NewFromInt(int64(100 + i))}
	}
	return out
}

func rateLimited() error {
	return provider.NewError(provider.KindRateLimited, "list_top", "", fmt.Errorf("status 429"))
}

func unavailable() error {
	return provider.NewError(provider.KindUpstreamUnavailable, "list_top", "", fmt.Errorf("status 502"))
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects delivered snapshots.
type recorder struct {
	mu    sync.Mutex
	snaps []provider.Snapshot
}

func (r *recorder) OnSnapshot(s provider.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []provider.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]provider.Snapshot(nil), r.snaps...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}
