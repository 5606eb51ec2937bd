package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// cacheTTL bounds how long a catalog entry is trusted before the next
// lookup re-hits the backing Catalog. The spec has no catalog-freshness
// invariant, so this is a pragmatic default: long enough that a compile
// or a validate pass over a large DAG doesn't re-fetch the same provider
// dozens of times, short enough that a catalog edit propagates quickly.
const cacheTTL = 5 * time.Minute

// Cached wraps a Catalog with an in-process ristretto cache, so repeated
// lookups of the same (provider, action) pair during a single
// validate/compile pass (spec.md §4.1) or a single run's dispatch loop
// don't each round-trip to the backing store.
type Cached struct {
	backing Catalog
	cache   *ristretto.Cache[string, any]
}

// NewCached builds a Cached wrapper around backing. NumCounters is 10x
// maxCost, and every entry is admitted at cost 1, so maxCost bounds the
// number of cached entries.
func NewCached(backing Catalog, maxCost int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: build cache: %w", err)
	}
	return &Cached{backing: backing, cache: cache}, nil
}

func (c *Cached) GetProvider(ctx context.Context, slug string) (*Provider, error) {
	key := "provider:" + slug
	if v, ok := c.cache.Get(key); ok {
		return v.(*Provider), nil
	}
	p, err := c.backing.GetProvider(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, p, 1, cacheTTL)
	return p, nil
}

func (c *Cached) GetAction(ctx context.Context, providerSlug, actionName string) (*ActionSpec, error) {
	key := "action:" + providerSlug + ":" + actionName
	if v, ok := c.cache.Get(key); ok {
		return v.(*ActionSpec), nil
	}
	a, err := c.backing.GetAction(ctx, providerSlug, actionName)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, a, 1, cacheTTL)
	return a, nil
}

func (c *Cached) GetTrigger(ctx context.Context, providerSlug, triggerSlug string) (*TriggerSpec, error) {
	key := "trigger:" + providerSlug + ":" + triggerSlug
	if v, ok := c.cache.Get(key); ok {
		return v.(*TriggerSpec), nil
	}
	t, err := c.backing.GetTrigger(ctx, providerSlug, triggerSlug)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, t, 1, cacheTTL)
	return t, nil
}

// Close releases cache resources. Safe to call once at process shutdown.
func (c *Cached) Close() { c.cache.Close() }

// Wait blocks until ristretto's async admission buffer has drained,
// needed by tests that assert on cache state immediately after a write.
func (c *Cached) Wait() { c.cache.Wait() }
