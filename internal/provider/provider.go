package provider

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the normalized shape of one instrument returned by the upstream.
// Numeric fields are decimals so prices survive a round trip through the
// persisted snapshot without float drift.
type Quote struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Sector        string          `json:"sector,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	High52W       decimal.Decimal `json:"high_52w"`
	Low52W        decimal.Decimal `json:"low_52w"`

	// Optional valuation fields; not every instrument carries them.
	PE            decimal.NullDecimal `json:"pe"`
	PB            decimal.NullDecimal `json:"pb"`
	DividendYield decimal.NullDecimal `json:"dividend_yield"`
	MarketCap     decimal.NullDecimal `json:"market_cap"`
	EPS           decimal.NullDecimal `json:"eps"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Source tells where a Snapshot came from.
type Source string

const (
	SourceFetch     Source = "fetch"
	SourceCache     Source = "cache"
	SourcePersisted Source = "persisted"
	SourceEmpty     Source = "empty"
)

// Snapshot is the unit of caching: every quote from one successful fetch
// (or one persisted record) plus the instant it was obtained.
type Snapshot struct {
	Quotes    []Quote   `json:"quotes"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    Source    `json:"source"`
	// Degraded is set when the caller is served something other than a
	// successful fetch or a fresh cache hit.
	Degraded bool `json:"degraded"`
}

// Len returns the number of quotes.
func (s Snapshot) Len() int { return len(s.Quotes) }

// IsEmpty reports whether the snapshot carries no quotes.
func (s Snapshot) IsEmpty() bool { return len(s.Quotes) == 0 }

// Find returns the quote whose ID matches id, ignoring case and
// surrounding whitespace.
func (s Snapshot) Find(id string) (Quote, bool) {
	want := strings.TrimSpace(id)
	if want == "" {
		return Quote{}, false
	}
	for _, q := range s.Quotes {
		if strings.EqualFold(q.ID, want) {
			return q, true
		}
	}
	return Quote{}, false
}

// With returns a copy of s relabelled with source and degraded.
// Quotes are shared; they are never mutated after a fetch.
func (s Snapshot) With(source Source, degraded bool) Snapshot {
	s.Source = source
	s.Degraded = degraded
	return s
}

// EmptySnapshot is what the bulk path returns when nothing usable exists.
func EmptySnapshot() Snapshot {
	return Snapshot{Quotes: []Quote{}, Source: SourceEmpty, Degraded: true}
}

// SeriesPoint is one time-stamped sample of a QuoteSeries.
type SeriesPoint struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// QuoteSeries is an ordered run of samples for one instrument over a window.
// Series are charting data and are never cached.
type QuoteSeries struct {
	ID        string        `json:"id"`
	Window    Window        `json:"window"`
	Points    []SeriesPoint `json:"points"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Upstream is the quote provider the core consumes.
type Upstream interface {
	// ListTop returns the tracked instruments in provider order.
	ListTop(ctx context.Context) ([]Quote, error)
	// GetDetail returns a single instrument.
	GetDetail(ctx context.Context, id string) (Quote, error)
	// GetSeries returns the samples of one instrument over window.
	GetSeries(ctx context.Context, id string, window Window) ([]SeriesPoint, error)
}
