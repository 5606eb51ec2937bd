// Package scheduler keeps time for cron-based triggers (spec.md §4.2):
// it fires each schedule's due instants exactly once and hands the
// activation off to the Executor. A single leader replica ticks at a
// time; the rest idle on lease.Elector.TryAcquire, so a crash hands the
// scan to a survivor within one lease TTL.
package scheduler

import (
	"context"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/scheduler/cronspec"
	"github.com/realtalishaw/super-enigma/engine/scheduler/lease"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// CatchupPolicy governs which enumerated fire times within a lookahead
// window survive a tick that finds a schedule behind.
type CatchupPolicy string

const (
	CatchupNone           CatchupPolicy = "none"
	CatchupFireImmediately CatchupPolicy = "fire_immediately"
	CatchupSpread         CatchupPolicy = "spread"
)

// OverlapPolicy governs what happens when a schedule's previous firing
// has not yet reached a terminal status.
type OverlapPolicy string

const (
	OverlapAllow OverlapPolicy = "allow"
	OverlapSkip  OverlapPolicy = "skip"
	OverlapQueue OverlapPolicy = "queue"
)

// Config tunes the tick loop. Field names and defaults mirror spec.md
// §4.2's named constants so an operator reading this struct recognizes
// the knob they're looking for.
type Config struct {
	TickInterval        time.Duration // TICK_MS, default 1s
	Lookahead           time.Duration // LOOKAHEAD_MS, default 60s
	MaxCatchupPerTick   int           // MAX_CATCHUP_PER_TICK, default 100
	JitterMax           time.Duration // max absolute jitter applied to fire_at
	MaxEnqueueAttempts  int           // bounded retry count on Executor enqueue failure
}

// DefaultConfig returns spec.md §4.2's stated defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Second,
		Lookahead:          60 * time.Second,
		MaxCatchupPerTick:  100,
		JitterMax:          0,
		MaxEnqueueAttempts: 3,
	}
}

// Dispatcher is the Executor boundary the scheduler calls for each due
// instant (spec.md §4.2 step 5): synchronously from the tick when the
// instant's fire time has passed, otherwise from a timer set for it.
// Keeping this as a narrow interface (rather than importing engine/executor
// directly) mirrors the Tool Invoker/Catalog contract pattern used
// elsewhere in the control plane.
type Dispatcher interface {
	StartScheduledRun(ctx context.Context, workflowID string, firedAt time.Time) (core.ID, error)
}

// Scheduler owns the tick loop and the schedule CRUD surface.
type Scheduler struct {
	schedules  store.ScheduleStore
	dispatcher Dispatcher
	elector    *lease.Elector
	cfg        Config

	mu      chan struct{} // binary semaphore guarding specCache
	specCache map[core.ID]*cronspec.Spec
}

func New(schedules store.ScheduleStore, dispatcher Dispatcher, elector *lease.Elector, cfg Config) *Scheduler {
	s := &Scheduler{
		schedules:  schedules,
		dispatcher: dispatcher,
		elector:    elector,
		cfg:        cfg,
		mu:         make(chan struct{}, 1),
		specCache:  make(map[core.ID]*cronspec.Spec),
	}
	s.mu <- struct{}{}
	return s
}

func (s *Scheduler) specFor(sched *store.Schedule) (*cronspec.Spec, error) {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()
	if spec, ok := s.specCache[sched.ID]; ok && spec.String() == sched.CronExpr {
		return spec, nil
	}
	spec, err := cronspec.Parse(sched.CronExpr, sched.Timezone)
	if err != nil {
		return nil, err
	}
	s.specCache[sched.ID] = spec
	return spec, nil
}

// Run drives the tick loop until ctx is canceled, ticking only while this
// replica holds the leader lease.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lock, ok := s.elector.TryAcquire(ctx)
			if !ok {
				continue
			}
			s.Tick(ctx)
			_ = lock.Release(ctx)
		}
	}
}
