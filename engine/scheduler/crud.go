package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/scheduler/cronspec"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// UpsertScheduleInput is the public contract's upsert_schedule(input).
type UpsertScheduleInput struct {
	ID         core.ID // zero value creates a new schedule
	WorkflowID string
	CronExpr   string
	Timezone   string
	Overlap    OverlapPolicy
	Catchup    CatchupPolicy
	JitterSecs int
	EndAt      *time.Time
}

// UpsertResult is upsert_schedule's `{schedule_id, next_run_at}`.
type UpsertResult struct {
	ScheduleID core.ID
	NextRunAt  time.Time
}

// UpsertSchedule validates the cron expression and timezone, precomputes
// next_run_at, and persists the schedule. Returns CronInvalid/TzInvalid
// wrapped errors on validation failure (spec.md §4.2).
func (s *Scheduler) UpsertSchedule(ctx context.Context, in UpsertScheduleInput) (*UpsertResult, error) {
	spec, err := cronspec.Parse(in.CronExpr, in.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScheduleInvalid, err)
	}
	id := in.ID
	if id.IsZero() {
		id = core.MustNewID()
	}
	nextRunAt := spec.Next(time.Now().UTC())
	sched := &store.Schedule{
		ID:         id,
		WorkflowID: in.WorkflowID,
		CronExpr:   in.CronExpr,
		Timezone:   in.Timezone,
		Overlap:    string(in.Overlap),
		Catchup:    string(in.Catchup),
		JitterSecs: in.JitterSecs,
		EndAt:      in.EndAt,
		NextRunAt:  nextRunAt,
	}
	if err := s.schedules.UpsertSchedule(ctx, sched); err != nil {
		return nil, err
	}
	return &UpsertResult{ScheduleID: id, NextRunAt: nextRunAt}, nil
}

// ErrScheduleInvalid wraps both CronInvalid and TzInvalid failures, since
// cronspec.Parse rejects either with the same constructor.
var ErrScheduleInvalid = fmt.Errorf("scheduler: invalid schedule")

func (s *Scheduler) PauseSchedule(ctx context.Context, id core.ID, paused bool) error {
	return s.schedules.PauseSchedule(ctx, id, paused)
}

func (s *Scheduler) DeleteSchedule(ctx context.Context, id core.ID) error {
	return s.schedules.DeleteSchedule(ctx, id)
}

// ScheduleWithPreview is get_schedule's `schedule + preview(next 5 fire times)`.
type ScheduleWithPreview struct {
	Schedule *store.Schedule
	Preview  []time.Time
}

const previewCount = 5

func (s *Scheduler) GetSchedule(ctx context.Context, id core.ID) (*ScheduleWithPreview, error) {
	sched, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	spec, err := cronspec.Parse(sched.CronExpr, sched.Timezone)
	if err != nil {
		return nil, err
	}
	preview := make([]time.Time, 0, previewCount)
	cursor := time.Now().UTC()
	for i := 0; i < previewCount; i++ {
		cursor = spec.Next(cursor)
		preview = append(preview, cursor)
	}
	return &ScheduleWithPreview{Schedule: sched, Preview: preview}, nil
}
