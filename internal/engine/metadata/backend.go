// Package metadata provides the read-through schema cache used during
// query compilation. Entity, facet and relation type definitions change
// rarely, so they are held in a TTL cache (in-memory or Redis) in front
// of the metadata store.
package metadata

import (
	"context"
	"time"
)

// Backend is the byte-level cache a SchemaCache sits on top of.
type Backend interface {
	// Get retrieves a value, or ErrCacheMiss if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL. A stale concurrent Set is simply
	// overwritten by a later one; values are never merged.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Clear removes all values.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config holds common configuration for cache backends.
type Config struct {
	// DefaultTTL applies when Set is called with ttl == 0.
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys.
	Prefix string
}

// DefaultConfig returns the configuration used when none is given.
// The 300s TTL matches how often type metadata is expected to change.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "leadgraph:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache.
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss.
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
