// Package cache provides a best-effort read accelerator. The store remains
// the system of record; callers must treat every miss or failure as a miss
// and fall back to the store.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// Cache is a narrow byte-oriented cache interface.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes are fire-and-forget at the call sites; implementations
	// still report errors so callers can log them.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
