package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/scheduler/cronspec"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// Tick implements spec.md §4.2's seven-step scan: select due schedules,
// enumerate fire times, apply catchup/overlap/jitter, hand each surviving
// instant to the Dispatcher, and advance next_run_at. Failures on one
// schedule do not abort the scan of the rest.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()
	horizon := now.Add(s.cfg.Lookahead)
	schedules, err := s.schedules.ListActiveSchedules(ctx)
	if err != nil {
		return
	}
	for _, sched := range schedules {
		if sched.EndAt != nil && sched.EndAt.Before(now) {
			continue
		}
		if sched.NextRunAt.After(horizon) {
			continue
		}
		s.tickOne(ctx, sched, now, horizon)
	}
}

func (s *Scheduler) tickOne(ctx context.Context, sched *store.Schedule, now, horizon time.Time) {
	spec, err := s.specFor(sched)
	if err != nil {
		return
	}
	since := sched.NextRunAt
	if since.IsZero() {
		since = now.Add(-time.Nanosecond)
	} else {
		since = since.Add(-time.Nanosecond) // EnumerateDueTimes is exclusive of `since`
	}
	due := applyCatchup(CatchupPolicy(sched.Catchup), enumerateDue(spec, since, horizon), now)
	if len(due) > s.cfg.MaxCatchupPerTick {
		due = due[:s.cfg.MaxCatchupPerTick]
	}
	if len(due) == 0 {
		return
	}
	next := spec.Next(due[len(due)-1])
	for _, runAt := range due {
		if !s.considerFireTime(ctx, sched, runAt, now) {
			// overlap_policy=queue: stop emitting for this schedule this tick and
			// resume next_run_at at this instant so it and the rest are retried.
			next = runAt
			break
		}
	}
	_ = s.schedules.AdvanceNextRunAt(ctx, sched.ID, next)
}

func enumerateDue(spec *cronspec.Spec, since, until time.Time) []time.Time {
	return cronspec.EnumerateDueTimes(spec, since, until)
}

// applyCatchup filters enumerated fire times per spec.md §4.2 step 2.
func applyCatchup(policy CatchupPolicy, times []time.Time, now time.Time) []time.Time {
	switch policy {
	case CatchupFireImmediately:
		return times
	case CatchupSpread:
		return spreadEvenly(times, now)
	default: // CatchupNone
		out := times[:0:0]
		for _, t := range times {
			if !t.Before(now) {
				out = append(out, t)
			}
		}
		return out
	}
}

// spreadEvenly returns times unchanged: a spread schedule keeps every
// enumerated fire time, in order, and each fires at its own run_at (plus
// jitter) exactly as under fire_immediately. The times are not re-spaced
// across the lookahead window.
func spreadEvenly(times []time.Time, _ time.Time) []time.Time {
	return times
}

// considerFireTime applies idempotency, overlap, and jitter per spec.md
// §4.2 steps 3-6, dispatching at most once per run_at. Returns false when
// overlap_policy=queue decides to defer the rest of this tick's candidates.
func (s *Scheduler) considerFireTime(ctx context.Context, sched *store.Schedule, runAt, now time.Time) bool {
	idem := core.DigestKey(sched.ID.String(), runAt.UTC().Format(time.RFC3339))
	switch OverlapPolicy(sched.Overlap) {
	case OverlapSkip:
		inflight, err := s.schedules.HasInflightScheduleRun(ctx, sched.ID)
		if err == nil && inflight {
			_, _ = s.schedules.CreateScheduleRun(ctx, &store.ScheduleRun{
				ScheduleID: sched.ID, DueAt: runAt, IdempotencyKey: idem, Status: store.ScheduleRunSkipped,
			})
			return true
		}
	case OverlapQueue:
		inflight, err := s.schedules.HasInflightScheduleRun(ctx, sched.ID)
		if err == nil && inflight {
			return false
		}
	}
	created, err := s.schedules.CreateScheduleRun(ctx, &store.ScheduleRun{
		ScheduleID: sched.ID, DueAt: runAt, IdempotencyKey: idem,
	})
	if err != nil || !created {
		return true // already dispatched for this instant; move on
	}
	fireAt := applyJitter(runAt, s.cfg.JitterMax)
	if fireAt.After(now) {
		time.AfterFunc(fireAt.Sub(now), func() { s.dispatch(ctx, sched, runAt) })
		return true
	}
	s.dispatch(ctx, sched, runAt)
	return true
}

func applyJitter(runAt time.Time, maxJitter time.Duration) time.Time {
	if maxJitter <= 0 {
		return runAt
	}
	delta := time.Duration(rand.Int63n(int64(2*maxJitter))) - maxJitter
	return runAt.Add(delta)
}

// dispatch hands the fired instant to the Executor with bounded retry on
// enqueue failure (spec.md §4.2 step 6).
func (s *Scheduler) dispatch(ctx context.Context, sched *store.Schedule, runAt time.Time) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxEnqueueAttempts; attempt++ {
		runID, err := s.dispatcher.StartScheduledRun(ctx, sched.WorkflowID, runAt)
		if err == nil {
			_ = s.schedules.AttachRun(ctx, sched.ID, runAt, runID)
			return
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if lastErr != nil {
		_ = s.schedules.SetScheduleRunStatus(ctx, sched.ID, runAt, store.ScheduleRunFailed)
	}
}
