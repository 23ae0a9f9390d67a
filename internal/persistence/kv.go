// Package persistence implements the durable key-value regions the tracker
// keeps session identity and dwell/event history in.
package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired
var ErrNotFound = errors.New("persistence: key not found")

// KV is a last-write-wins key-value region
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
