package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadgraph/leadgraph/internal/engine/schema"
)

// Kind identifies which metadata family a cache key belongs to.
type Kind string

const (
	KindEntityType   Kind = "entity_type"
	KindFacetType    Kind = "facet_type"
	KindRelationType Kind = "relation_type"
)

// Fetcher loads type metadata from the backing store on a cache miss.
// Implemented by the store package.
type Fetcher interface {
	FetchEntityType(ctx context.Context, slug string) (*schema.EntityType, error)
	FetchFacetType(ctx context.Context, slug string) (*schema.FacetType, error)
	FetchRelationType(ctx context.Context, slug string) (*schema.RelationType, error)
}

// SchemaCache is the read-through metadata cache used during query
// compilation and relation resolution. Values expire after the
// configured TTL; Invalidate forces a refetch after metadata edits.
// Concurrent refreshes of the same slug race benignly: the last write
// replaces the value wholesale.
type SchemaCache struct {
	backend Backend
	fetcher Fetcher
	ttl     time.Duration
}

// NewSchemaCache creates a schema cache over the given backend.
// A ttl of 0 uses the backend's default.
func NewSchemaCache(backend Backend, fetcher Fetcher, ttl time.Duration) *SchemaCache {
	return &SchemaCache{
		backend: backend,
		fetcher: fetcher,
		ttl:     ttl,
	}
}

// EntityType returns the entity type for slug, from cache when fresh.
func (c *SchemaCache) EntityType(ctx context.Context, slug string) (*schema.EntityType, error) {
	var et schema.EntityType
	hit, err := c.lookup(ctx, KindEntityType, slug, &et)
	if err != nil {
		return nil, err
	}
	if hit {
		return &et, nil
	}

	fetched, err := c.fetcher.FetchEntityType(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, KindEntityType, slug, fetched)
	return fetched, nil
}

// FacetType returns the facet type for slug, from cache when fresh.
func (c *SchemaCache) FacetType(ctx context.Context, slug string) (*schema.FacetType, error) {
	var ft schema.FacetType
	hit, err := c.lookup(ctx, KindFacetType, slug, &ft)
	if err != nil {
		return nil, err
	}
	if hit {
		return &ft, nil
	}

	fetched, err := c.fetcher.FetchFacetType(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, KindFacetType, slug, fetched)
	return fetched, nil
}

// RelationType returns the relation type for slug, from cache when fresh.
func (c *SchemaCache) RelationType(ctx context.Context, slug string) (*schema.RelationType, error) {
	var rt schema.RelationType
	hit, err := c.lookup(ctx, KindRelationType, slug, &rt)
	if err != nil {
		return nil, err
	}
	if hit {
		return &rt, nil
	}

	fetched, err := c.fetcher.FetchRelationType(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, KindRelationType, slug, fetched)
	return fetched, nil
}

// Invalidate drops the cached definition so the next access refetches.
// Used after metadata edits.
func (c *SchemaCache) Invalidate(ctx context.Context, kind Kind, slug string) error {
	return c.backend.Delete(ctx, cacheKey(kind, slug))
}

// lookup reads a cached definition into out. Returns false on miss.
// Backend failures are treated as misses so a degraded cache never
// blocks query compilation.
func (c *SchemaCache) lookup(ctx context.Context, kind Kind, slug string, out interface{}) (bool, error) {
	raw, err := c.backend.Get(ctx, cacheKey(kind, slug))
	if err != nil {
		if IsCacheMiss(err) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Corrupt entry: drop it and refetch.
		_ = c.backend.Delete(ctx, cacheKey(kind, slug))
		return false, nil
	}
	return true, nil
}

// store writes a fetched definition back to the cache. Failures are
// ignored: the next access will fetch again.
func (c *SchemaCache) store(ctx context.Context, kind Kind, slug string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.backend.Set(ctx, cacheKey(kind, slug), raw, c.ttl)
}

func cacheKey(kind Kind, slug string) string {
	return fmt.Sprintf("%s:%s", kind, slug)
}
