// Package persist keeps the last good bulk snapshot in durable storage so a
// cold start or an upstream outage still has something to serve.
package persist

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Load when key has never been saved.
var ErrNotFound = errors.New("persist: key not found")

// Store is a string-keyed byte store that remembers when each value was
// written. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, key string, value []byte, at time.Time) error
	Load(ctx context.Context, key string) (value []byte, at time.Time, err error)
}
