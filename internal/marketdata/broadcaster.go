package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// State is the scheduler state.
type State string

const (
	// StateIdle means no subscribers and no poll loop.
	StateIdle State = "idle"
	// StatePolling means the poll loop is fetching on its interval.
	StatePolling State = "polling"
	// StateCoolingDown means polling is suspended after a rate-limit signal.
	StateCoolingDown State = "cooling_down"
)

// State returns the scheduler state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribers returns the registered ids in registration order.
func (s *Service) Subscribers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ids()
}

// Subscribe registers h under id. Subscribing an id that is already
// registered replaces its handler and keeps its position. The first
// subscription starts the poll loop; a subscriber joining a running loop is
// handed the cached snapshot straight away.
func (s *Service) Subscribe(id string, h Handler) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("marketdata: empty subscription id")
	}
	if h == nil {
		return fmt.Errorf("marketdata: nil handler for %q", id)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sub, existed := s.registry.put(id, h)
	started := false
	if s.cancel == nil {
		s.startLocked()
		started = true
	}
	// A loop that starts by cooling down has no immediate fetch to deliver.
	handOver := !existed && (!started || s.state == StateCoolingDown)
	s.mu.Unlock()

	s.logger.Debug("subscribed", "id", id, "replaced", existed, "started", started)

	if handOver {
		if snap, ok := s.cache.Get(); ok {
			s.deliverMu.Lock()
			s.deliver(target{sub: sub, handler: h}, snap.With(provider.SourceCache, !s.cache.IsFresh(s.cfg.FreshnessWindow)))
			s.deliverMu.Unlock()
		}
	}
	return nil
}

// Unsubscribe removes id. Removing the last subscription stops the poll
// loop; a fetch already in flight still completes and updates the cache.
func (s *Service) Unsubscribe(id string) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.remove(id) {
		return
	}
	s.logger.Debug("unsubscribed", "id", id)
	if s.registry.len() == 0 {
		s.stopLocked()
	}
}

// startLocked moves Idle to Polling, or to CoolingDown when a rate-limit
// pause is still running. s.mu must be held.
func (s *Service) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++

	wait := s.gate.cooldownRemaining()
	if wait > 0 {
		s.state = StateCoolingDown
	} else {
		s.state = StatePolling
	}

	s.wg.Add(1)
	go s.run(ctx, s.gen, wait)

	s.logger.Info("quote polling started", "interval", s.cfg.PollInterval, "delay", wait)
}

// stopLocked moves to Idle. s.mu must be held.
func (s *Service) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.gen++
	s.state = StateIdle
	s.logger.Info("quote polling stopped")
}

// setState applies st only if gen is still the running loop.
func (s *Service) setState(gen uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.cancel != nil {
		s.state = st
	}
}

// run is the poll loop. wait delays the first attempt.
func (s *Service) run(ctx context.Context, gen uint64, wait time.Duration) {
	defer s.wg.Done()

	for {
		if wait > 0 {
			s.setState(gen, StateCoolingDown)
			s.logger.Info("quote polling suspended", "cooldown", wait)

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			s.setState(gen, StatePolling)
			s.logger.Info("quote polling resumed")
		}

		wait = s.pollLoop(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// pollLoop fetches immediately and then on every tick. It returns the
// remaining cooldown when a fetch was rate limited, or zero once ctx ends.
func (s *Service) pollLoop(ctx context.Context) time.Duration {
	if d := s.poll(ctx); d > 0 {
		return d
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			if d := s.poll(ctx); d > 0 {
				return d
			}
		}
	}
}

// poll runs one fetch attempt. Completed fetches are broadcast by
// Service.fetched; poll broadcasts only what the gate served without one.
func (s *Service) poll(ctx context.Context) time.Duration {
	snap, err := s.gate.acquire(ctx)
	if ctx.Err() != nil {
		return 0
	}

	switch {
	case err == nil:
		if snap.Source == provider.SourceCache {
			s.broadcast(snap)
		}
		return 0
	case errors.Is(err, ErrFetchInProgress):
		s.logger.Debug("poll skipped, fetch in progress")
		return 0
	case errors.Is(err, errCoolingDown):
		s.broadcast(s.fallbackSnapshot(ctx, err))
	}

	if provider.KindOf(err) == provider.KindRateLimited {
		return s.gate.cooldownRemaining()
	}
	return 0
}

// broadcast delivers snap to every subscription in registration order.
func (s *Service) broadcast(snap provider.Snapshot) {
	s.mu.Lock()
	targets := s.registry.targets()
	s.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.stats.broadcasts.Add(1)
	for _, t := range targets {
		s.deliver(t, snap)
	}
}

// deliver hands snap to one subscription unless it has already seen a newer
// one. s.deliverMu must be held.
func (s *Service) deliver(t target, snap provider.Snapshot) {
	if t.sub.delivered && snap.FetchedAt.Before(t.sub.last) {
		s.stats.staleSkipped.Add(1)
		return
	}
	t.sub.delivered = true
	t.sub.last = snap.FetchedAt

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber handler panicked", "id", t.sub.id, "panic", r)
		}
	}()
	t.handler.OnSnapshot(snap)
	s.stats.deliveries.Add(1)
}
