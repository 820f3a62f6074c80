package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

const (
	opListTop   = "list_top"
	opGetDetail = "get_detail"
	opGetSeries = "get_series"
)

var _ provider.Upstream = (*Client)(nil)

// wireQuote is the provider's JSON shape of a quote.
type wireQuote struct {
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	Sector        string              `json:"sector"`
	Price         decimal.Decimal     `json:"price"`
	Change        decimal.Decimal     `json:"change"`
	ChangePercent decimal.Decimal     `json:"changePercent"`
	Volume        int64               `json:"volume"`
	DayHigh       decimal.Decimal     `json:"dayHigh"`
	DayLow        decimal.Decimal     `json:"dayLow"`
	High52W       decimal.Decimal     `json:"high52w"`
	Low52W        decimal.Decimal     `json:"low52w"`
	PE            decimal.NullDecimal `json:"pe"`
	PB            decimal.NullDecimal `json:"pb"`
	DividendYield decimal.NullDecimal `json:"dividendYield"`
	MarketCap     decimal.NullDecimal `json:"marketCap"`
	EPS           decimal.NullDecimal `json:"eps"`
	UpdatedAt     int64               `json:"updatedAt"`
}

type wirePoint struct {
	Time   int64           `json:"t"`
	Open   decimal.Decimal `json:"o"`
	High   decimal.Decimal `json:"h"`
	Low    decimal.Decimal `json:"l"`
	Close  decimal.Decimal `json:"c"`
	Volume int64           `json:"v"`
}

func (w wireQuote) toQuote(now time.Time) provider.Quote {
	return provider.Quote{
		ID:            strings.TrimSpace(w.Symbol),
		Name:          strings.TrimSpace(w.Name),
		Sector:        w.Sector,
		Price:         w.Price,
		Change:        w.Change,
		ChangePercent: w.ChangePercent,
		Volume:        w.Volume,
		DayHigh:       w.DayHigh,
		DayLow:        w.DayLow,
		High52W:       w.High52W,
		Low52W:        w.Low52W,
		PE:            w.PE,
		PB:            w.PB,
		DividendYield: w.DividendYield,
		MarketCap:     w.MarketCap,
		EPS:           w.EPS,
		UpdatedAt:     epochTime(w.UpdatedAt, now),
	}
}

// epochTime accepts seconds or milliseconds since the epoch.
func epochTime(v int64, fallback time.Time) time.Time {
	if v <= 0 {
		return fallback
	}
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

// ListTop returns the tracked instruments in the order the provider lists them.
func (c *Client) ListTop(ctx context.Context) ([]provider.Quote, error) {
	data, err := c.get(ctx, opListTop, "", "/v1/quotes/top", nil)
	if err != nil {
		return nil, err
	}

	var items []wireQuote
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, provider.NewError(provider.KindUpstreamUnavailable, opListTop, "", fmt.Errorf("decoding quotes: %w", err))
	}

	now := time.Now().UTC()
	out := make([]provider.Quote, 0, len(items))
	for _, it := range items {
		q := it.toQuote(now)
		if q.ID == "" {
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, provider.NewError(provider.KindNoDataAvailable, opListTop, "", fmt.Errorf("no usable quotes in %d items", len(items)))
	}
	return out, nil
}

// GetDetail returns one instrument.
func (c *Client) GetDetail(ctx context.Context, id string) (provider.Quote, error) {
	id = strings.TrimSpace(id)
	data, err := c.get(ctx, opGetDetail, id, "/v1/quotes/"+url.PathEscape(id), nil)
	if err != nil {
		return provider.Quote{}, err
	}

	var item wireQuote
	if err := json.Unmarshal(data, &item); err != nil {
		return provider.Quote{}, provider.NewError(provider.KindUpstreamUnavailable, opGetDetail, id, fmt.Errorf("decoding quote: %w", err))
	}
	q := item.toQuote(time.Now().UTC())
	if q.ID == "" {
		q.ID = id
	}
	return q, nil
}

// GetSeries returns the samples of one instrument over window, oldest first.
func (c *Client) GetSeries(ctx context.Context, id string, window provider.Window) ([]provider.SeriesPoint, error) {
	id = strings.TrimSpace(id)
	query := url.Values{"window": []string{window.String()}}
	data, err := c.get(ctx, opGetSeries, id, "/v1/quotes/"+url.PathEscape(id)+"/series", query)
	if err != nil {
		return nil, err
	}

	var items []wirePoint
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, provider.NewError(provider.KindUpstreamUnavailable, opGetSeries, id, fmt.Errorf("decoding series: %w", err))
	}
	out := make([]provider.SeriesPoint, 0, len(items))
	for _, p := range items {
		if p.Time <= 0 {
			continue
		}
		out = append(out, provider.SeriesPoint{
			Time:   epochTime(p.Time, time.Time{}),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}
	if len(out) == 0 {
		return nil, provider.NewError(provider.KindNoDataAvailable, opGetSeries, id, fmt.Errorf("no usable points in %d items", len(items)))
	}
	return out, nil
}
