package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies data-layer failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindRateLimited
	KindUpstreamUnavailable
	KindNoDataAvailable
	KindPersistenceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindNoDataAvailable:
		return "no_data_available"
	case KindPersistenceUnavailable:
		return "persistence_unavailable"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a *FetchError.
var (
	ErrTimeout                = errors.New("timeout")
	ErrRateLimited            = errors.New("rate limited")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrNoDataAvailable        = errors.New("no data available")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindRateLimited:
		return ErrRateLimited
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	case KindNoDataAvailable:
		return ErrNoDataAvailable
	case KindPersistenceUnavailable:
		return ErrPersistenceUnavailable
	}
	return nil
}

// FetchError is the typed failure surfaced by the upstream client and the
// on-demand reads.
type FetchError struct {
	Kind Kind
	Op   string // list_top, get_detail, get_series, persist_load, ...
	ID   string // instrument id, empty for bulk operations
	Err  error
}

func (e *FetchError) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.ID != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind, so errors.Is(err, ErrRateLimited) works
// through any wrapping.
func (e *FetchError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// NewError builds a FetchError, classifying err when kind is KindUnknown.
func NewError(kind Kind, op, id string, err error) *FetchError {
	if kind == KindUnknown {
		kind = KindOf(err)
	}
	return &FetchError{Kind: kind, Op: op, ID: id, Err: err}
}

// KindOf classifies any error. Deadlines become KindTimeout; anything that is
// not already typed counts as the upstream being unavailable.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind != KindUnknown {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	for _, k := range []Kind{KindTimeout, KindRateLimited, KindNoDataAvailable, KindPersistenceUnavailable} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return KindUpstreamUnavailable
}

// WithID returns a copy of err carrying id when err is a *FetchError,
// otherwise a new FetchError wrapping it.
func WithID(err error, op, id string) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		cp := *fe
		cp.ID = id
		if cp.Op == "" {
			cp.Op = op
		}
		return &cp
	}
	return NewError(KindUnknown, op, id, err)
}
