package metadata

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend implements an in-memory cache with TTL support.
// Metadata sets are small (tens to low hundreds of entries), so no
// eviction beyond expiry is needed.
type MemoryBackend struct {
	data   sync.Map
	config Config
	cancel context.CancelFunc
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryBackend creates a new in-memory cache backend.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(DefaultConfig())
}

// NewMemoryBackendWithConfig creates a new in-memory cache backend with
// custom configuration.
func NewMemoryBackendWithConfig(config Config) *MemoryBackend {
	ctx, cancel := context.WithCancel(context.Background())
	mb := &MemoryBackend{
		config: config,
		cancel: cancel,
	}

	go mb.sweepExpired(ctx)

	return mb
}

// Get retrieves a value from the cache.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key

	value, ok := m.data.Load(fullKey)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}

	item := value.(cacheItem)
	if !item.expiration.IsZero() && time.Now().After(item.expiration) {
		m.data.Delete(fullKey)
		return nil, ErrCacheMiss{Key: key}
	}

	return item.value, nil
}

// Set stores a value in the cache with a TTL.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullKey := m.config.Prefix + key

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	item := cacheItem{value: value}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}

	m.data.Store(fullKey, item)
	return nil
}

// Delete removes a value from the cache.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data.Delete(m.config.Prefix + key)
	return nil
}

// Clear removes all values from the cache.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.data.Range(func(key, value interface{}) bool {
		m.data.Delete(key)
		return true
	})
	return nil
}

// Close stops the background sweep goroutine.
func (m *MemoryBackend) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// sweepExpired periodically removes expired items from the cache.
func (m *MemoryBackend) sweepExpired(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.data.Range(func(key, value interface{}) bool {
				item := value.(cacheItem)
				if !item.expiration.IsZero() && now.After(item.expiration) {
					m.data.Delete(key)
				}
				return true
			})
		}
	}
}
