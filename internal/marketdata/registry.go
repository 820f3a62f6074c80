package marketdata

import (
	"time"

	"github.com/gurram46/Artha-Agent-sub001/internal/provider"
)

// Handler receives every snapshot broadcast to a subscription. Calls for
// one Service are serialized; a handler must not block for long and must
// not call Subscribe on the same Service.
type Handler interface {
	OnSnapshot(provider.Snapshot)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(provider.Snapshot)

func (f HandlerFunc) OnSnapshot(s provider.Snapshot) { f(s) }

type subscription struct {
	id      string
	handler Handler // guarded by Service.mu

	// guarded by Service.deliverMu
	delivered bool
	last      time.Time
}

type target struct {
	sub     *subscription
	handler Handler
}

// registry keeps subscriptions in registration order.
type registry struct {
	subs  []*subscription
	index map[string]int
}

func newRegistry() *registry {
	return &registry{index: make(map[string]int)}
}

// put adds a subscription or replaces the handler of an existing one in
// place. It reports whether id was already registered.
func (r *registry) put(id string, h Handler) (*subscription, bool) {
	if i, ok := r.index[id]; ok {
		r.subs[i].handler = h
		return r.subs[i], true
	}
	sub := &subscription{id: id, handler: h}
	r.index[id] = len(r.subs)
	r.subs = append(r.subs, sub)
	return sub, false
}

func (r *registry) remove(id string) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	delete(r.index, id)
	r.subs = append(r.subs[:i], r.subs[i+1:]...)
	for j := i; j < len(r.subs); j++ {
		r.index[r.subs[j].id] = j
	}
	return true
}

func (r *registry) len() int { return len(r.subs) }

func (r *registry) clear() {
	r.subs = nil
	r.index = make(map[string]int)
}

// targets copies the registry so delivery can run without the lock.
func (r *registry) targets() []target {
	out := make([]target, len(r.subs))
	for i, s := range r.subs {
		out[i] = target{sub: s, handler: s.handler}
	}
	return out
}

func (r *registry) ids() []string {
	out := make([]string, len(r.subs))
	for i, s := range r.subs {
		out[i] = s.id
	}
	return out
}
