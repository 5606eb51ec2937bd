// Package idemcache is the Executor's node-level idempotency cache
// (spec.md §4.3): an action's output keyed by
// `sha256(run_id||":"||node_id||":"||digest(rendered_args))` with a TTL
// of at least 24 hours, so an action dispatched again in the same process
// with the same run, node and rendered arguments gets the prior result
// back instead of re-invoking a non-idempotent external action.
package idemcache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MinTTL is the floor spec.md §4.3 states ("TTL ≥ 24 h").
const MinTTL = 24 * time.Hour

// Cache is a TTL-bounded, in-process idempotency cache.
type Cache struct {
	ristretto *ristretto.Cache[string, any]
	ttl       time.Duration
}

// New builds a Cache sized by maxCost (ristretto's cost-weighted
// admission budget; Set admits every entry at cost 1, so maxCost bounds
// the number of entries). ttl below MinTTL is clamped up.
func New(maxCost int64, ttl time.Duration) (*Cache, error) {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{ristretto: rc, ttl: ttl}, nil
}

// Get returns the cached result for idemKey, or (nil, false) on a miss.
func (c *Cache) Get(idemKey string) (any, bool) {
	return c.ristretto.Get(idemKey)
}

// Set stores result under idemKey with the cache's configured TTL.
func (c *Cache) Set(idemKey string, result any) {
	c.ristretto.SetWithTTL(idemKey, result, 1, c.ttl)
}

// Wait blocks until ristretto has finished applying pending Set calls;
// tests needing deterministic visibility of a just-set value call this.
func (c *Cache) Wait() { c.ristretto.Wait() }

// Close releases the cache's background goroutines.
func (c *Cache) Close() { c.ristretto.Close() }
