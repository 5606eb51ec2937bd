package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/realtalishaw/super-enigma/engine/infra/cache"
	"github.com/realtalishaw/super-enigma/engine/scheduler/lease"
)

type fakeManager struct {
	held bool
}

type fakeLock struct{ resource string }

func (l *fakeLock) Release(_ context.Context) error { return nil }
func (l *fakeLock) Refresh(_ context.Context) error  { return nil }
func (l *fakeLock) Resource() string                 { return l.resource }
func (l *fakeLock) IsHeld() bool                     { return true }

func (m *fakeManager) Acquire(_ context.Context, resource string, _ time.Duration) (cache.Lock, error) {
	if m.held {
		return nil, cache.ErrLockNotAcquired
	}
	return &fakeLock{resource: resource}, nil
}

func TestElector_TryAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("Should become leader when the lease is free", func(t *testing.T) {
		e := lease.New(&fakeManager{held: false})
		lock, ok := e.TryAcquire(ctx)
		assert.True(t, ok)
		assert.Equal(t, "scheduler:leader", lock.Resource())
	})

	t.Run("Should report failure without an error when another replica holds the lease", func(t *testing.T) {
		e := lease.New(&fakeManager{held: true})
		lock, ok := e.TryAcquire(ctx)
		assert.False(t, ok)
		assert.Nil(t, lock)
	})
}
