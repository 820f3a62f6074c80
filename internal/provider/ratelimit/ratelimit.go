package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// MinInterval wraps an Upstream and enforces a minimum time between the
// start of one call and the end of the previous one. Waiting callers give
// up when their context is done.
type MinInterval struct {
	Upstream provider.Upstream
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

var _ provider.Upstream = (*MinInterval)(nil)

func (m *MinInterval) pace(ctx context.Context, op, id string) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return provider.NewError(provider.KindTimeout, op, id, ctx.Err())
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) done() {
	if m.Interval > 0 {
		m.mu.Lock()
		m.last = time.Now()
		m.mu.Unlock()
	}
}

func (m *MinInterval) ListTop(ctx context.Context) ([]provider.Quote, error) {
	if err := m.pace(ctx, "list_top", ""); err != nil {
		return nil, err
	}
	defer m.done()
	return m.Upstream.ListTop(ctx)
}

func (m *MinInterval) GetDetail(ctx context.Context, id string) (provider.Quote, error) {
	if err := m.pace(ctx, "get_detail", id); err != nil {
		return provider.Quote{}, err
	}
	defer m.done()
	return m.Upstream.GetDetail(ctx, id)
}

func (m *MinInterval) GetSeries(ctx context.Context, id string, window provider.Window) ([]provider.SeriesPoint, error) {
	if err := m.pace(ctx, "get_series", id); err != nil {
		return nil, err
	}
	defer m.done()
	return m.Upstream.GetSeries(ctx, id, window)
}
