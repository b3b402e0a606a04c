// Package kvstore defines the key-value store every stateful component of
// the routing engine shares: string keys, string values, per-key TTL.
// Backends: Redis for deployments, pebble for single-node embedded mode,
// and an in-memory store for tests.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("kvstore: store is closed")
)

// Item is one entry of a pipelined multi-write.
type Item struct {
	Key   string
	Value string
	// TTL <= 0 means no expiry.
	TTL time.Duration
}

// Store defines the basic operations any backend must support.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes key with a TTL (<= 0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key only if it does not already exist. Returns true
	// when the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// MGet returns one entry per key; absent keys yield nil.
	MGet(ctx context.Context, keys ...string) ([]*string, error)

	// MSet writes all items in a single pipelined batch.
	MSet(ctx context.Context, items []Item) error

	// Scan returns every key matching pattern. Patterns use a trailing
	// "*" glob ("otc:quotes:USDC:EUR:*"). Implementations must use a
	// non-blocking cursor where the backend offers one.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
