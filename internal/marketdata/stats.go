package marketdata

import (
	"sync/atomic"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

type counters struct {
	upstreamCalls    atomic.Int64
	fetchFailures    atomic.Int64
	rateLimited      atomic.Int64
	cacheHits        atomic.Int64
	inFlightRejected atomic.Int64
	broadcasts       atomic.Int64
	deliveries       atomic.Int64
	staleSkipped     atomic.Int64
	lastFetchAt      atomic.Int64
	lastErrorKind    atomic.Int32
}

func (c *counters) recordFailure(fe *provider.FetchError) {
	c.fetchFailures.Add(1)
	if fe.Kind == provider.KindRateLimited {
		c.rateLimited.Add(1)
	}
	c.lastErrorKind.Store(int32(fe.Kind))
}

// Stats is a point-in-time view of a Service.
type Stats struct {
	State            State     `json:"state"`
	Subscribers      int       `json:"subscribers"`
	UpstreamCalls    int64     `json:"upstream_calls"`
	FetchFailures    int64     `json:"fetch_failures"`
	RateLimited      int64     `json:"rate_limited"`
	CacheHits        int64     `json:"cache_hits"`
	InFlightRejected int64     `json:"in_flight_rejected"`
	Broadcasts       int64     `json:"broadcasts"`
	Deliveries       int64     `json:"deliveries"`
	StaleSkipped     int64     `json:"stale_skipped"`
	LastFetchAt      time.Time `json:"last_fetch_at,omitzero"`
	LastErrorKind    string    `json:"last_error_kind,omitempty"`
	CooldownUntil    time.Time `json:"cooldown_until,omitzero"`
	SnapshotAgeSec   float64   `json:"snapshot_age_sec"`
	CachedQuotes     int       `json:"cached_quotes"`
}

// Stats reports counters and the scheduler state.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{State: s.state, Subscribers: s.registry.len()}
	s.mu.Unlock()

	st.UpstreamCalls = s.stats.upstreamCalls.Load()
	st.FetchFailures = s.stats.fetchFailures.Load()
	st.RateLimited = s.stats.rateLimited.Load()
	st.CacheHits = s.stats.cacheHits.Load()
	st.InFlightRejected = s.stats.inFlightRejected.Load()
	st.Broadcasts = s.stats.broadcasts.Load()
	st.Deliveries = s.stats.deliveries.Load()
	st.StaleSkipped = s.stats.staleSkipped.Load()
	if ns := s.stats.lastFetchAt.Load(); ns != 0 {
		st.LastFetchAt = time.Unix(0, ns).UTC()
	}
	if k := provider.Kind(s.stats.lastErrorKind.Load()); k != provider.KindUnknown {
		st.LastErrorKind = k.String()
	}
	if until := s.gate.cooldownDeadline(); s.now().Before(until) {
		st.CooldownUntil = until
	}
	if age := s.cache.Age(); age >= 0 {
		st.SnapshotAgeSec = age.Seconds()
	}
	if snap, ok := s.cache.Get(); ok {
		st.CachedQuotes = snap.Len()
	}
	return st
}
