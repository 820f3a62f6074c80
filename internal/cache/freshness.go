// Package cache holds the current bulk quote snapshot in memory.
package cache

import (
	"sync"
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// Freshness remembers the latest Snapshot and judges its age on read.
// Entries are never evicted; a stale snapshot stays available as a
// fallback until replaced.
type Freshness struct {
	mu   sync.RWMutex
	snap provider.Snapshot
	set  bool
	now  func() time.Time
}

// NewFreshness returns an empty cache. now may be nil.
func NewFreshness(now func() time.Time) *Freshness {
	if now == nil {
		now = time.Now
	}
	return &Freshness{now: now}
}

// Set replaces the held snapshot. An empty snapshot is ignored so a
// usable one is never overwritten by nothing.
func (f *Freshness) Set(s provider.Snapshot) {
	if s.IsEmpty() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = s
	f.set = true
}

// Get returns the held snapshot, if any.
func (f *Freshness) Get() (provider.Snapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap, f.set
}

// IsFresh reports whether a snapshot is held and is younger than window.
func (f *Freshness) IsFresh(window time.Duration) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set && f.now().Sub(f.snap.FetchedAt) < window
}

// Age returns how old the held snapshot is, or -1 when empty.
func (f *Freshness) Age() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return -1
	}
	return f.now().Sub(f.snap.FetchedAt)
}
