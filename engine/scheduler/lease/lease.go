// Package lease wraps engine/infra/cache.LockManager into the leader
// election primitive spec.md §4.2 requires: "only one scheduler replica
// evaluates a given schedule's due times at a time". A replica that
// holds the lease runs the tick loop; one that doesn't sits idle and
// retries acquisition, so a crash hands leadership to a survivor within
// one lease TTL.
package lease

import (
	"context"
	"time"

	"github.com/realtalishaw/super-enigma/engine/infra/cache"
)

const defaultTTL = 15 * time.Second

// key is the single resource name every scheduler replica contends for.
// The control plane runs one logical scheduler, so a single fixed key is
// sufficient; a future multi-tenant scheduler would key this per tenant.
const key = "scheduler:leader"

// Elector repeatedly attempts to become (and remain) the scheduler leader.
type Elector struct {
	manager cache.LockManager
	ttl     time.Duration
}

func New(manager cache.LockManager) *Elector {
	return &Elector{manager: manager, ttl: defaultTTL}
}

// TryAcquire attempts to become leader, returning (nil, false) rather
// than an error when another replica already holds the lease — that is
// the expected steady state for every non-leader replica, not a failure.
func (e *Elector) TryAcquire(ctx context.Context) (cache.Lock, bool) {
	lock, err := e.manager.Acquire(ctx, key, e.ttl)
	if err != nil {
		return nil, false
	}
	return lock, true
}
