package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

const (
	opGetDetail = "get_detail"
	opGetSeries = "get_series"
)

// ErrInvalidWindow is returned by GetSeries for a window it does not know.
var ErrInvalidWindow = errors.New("invalid series window")

// GetDetail returns one instrument. It asks the upstream first and, on any
// failure, looks the id up in the current bulk snapshot. When both come up
// empty it returns a nil quote with the upstream's typed error.
//
// Concurrent calls for the same id share one upstream request, which is
// bounded by DetailTimeout and not cut short by any single caller.
func (s *Service) GetDetail(ctx context.Context, id string) (*provider.Quote, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, provider.NewError(provider.KindNoDataAvailable, opGetDetail, "", errors.New("empty id"))
	}

	v, err, shared := s.detail.Do(strings.ToUpper(id), func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DetailTimeout)
		defer cancel()

		q, err := s.upstream.GetDetail(dctx, id)
		if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
			return nil, provider.NewError(provider.KindTimeout, opGetDetail, id, err)
		}
		return q, err
	})
	if err == nil {
		q := v.(provider.Quote)
		return &q, nil
	}

	fe := provider.WithID(err, opGetDetail, id)
	if q, ok := s.currentSnapshot(ctx).Find(id); ok {
		s.logger.Debug("detail served from snapshot", "id", id, "kind", fe.Kind.String(), "shared", shared)
		return &q, nil
	}
	s.logger.Warn("detail unavailable", "id", id, "error", fe)
	return nil, fe
}

// GetSeries fetches the samples for id over window. Series are never
// cached; failures come back as a *provider.FetchError carrying id.
func (s *Service) GetSeries(ctx context.Context, id string, window provider.Window) (provider.QuoteSeries, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return provider.QuoteSeries{}, provider.NewError(provider.KindNoDataAvailable, opGetSeries, "", errors.New("empty id"))
	}
	w, err := provider.ParseWindow(window.String())
	if err != nil {
		return provider.QuoteSeries{}, fmt.Errorf("%w: %w", ErrInvalidWindow, err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SeriesTimeout)
	defer cancel()

	points, err := s.upstream.GetSeries(sctx, id, w)
	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && provider.KindOf(err) != provider.KindRateLimited {
			return provider.QuoteSeries{}, provider.NewError(provider.KindTimeout, opGetSeries, id, err)
		}
		return provider.QuoteSeries{}, provider.WithID(err, opGetSeries, id)
	}
	if len(points) == 0 {
		return provider.QuoteSeries{}, provider.NewError(provider.KindNoDataAvailable, opGetSeries, id, errors.New("empty series"))
	}
	return provider.QuoteSeries{ID: id, Window: w, Points: points, FetchedAt: s.now()}, nil
}
