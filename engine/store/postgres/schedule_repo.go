package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// ScheduleRepo is the postgres-backed store.ScheduleStore.
type ScheduleRepo struct {
	db DB
}

func NewScheduleRepo(db DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

type scheduleRow struct {
	ID         string     `db:"id"`
	WorkflowID string     `db:"workflow_id"`
	CronExpr   string     `db:"cron_expr"`
	Timezone   string     `db:"timezone"`
	Overlap    string     `db:"overlap"`
	Catchup    string     `db:"catchup"`
	JitterSecs int        `db:"jitter_secs"`
	EndAt      *time.Time `db:"end_at"`
	Paused     bool       `db:"paused"`
	NextRunAt  time.Time  `db:"next_run_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (row scheduleRow) toDomain() *store.Schedule {
	return &store.Schedule{
		ID:         core.ID(row.ID),
		WorkflowID: row.WorkflowID,
		CronExpr:   row.CronExpr,
		Timezone:   row.Timezone,
		Overlap:    row.Overlap,
		Catchup:    row.Catchup,
		JitterSecs: row.JitterSecs,
		EndAt:      row.EndAt,
		Paused:     row.Paused,
		NextRunAt:  row.NextRunAt,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

var scheduleColumns = []string{
	"id", "workflow_id", "cron_expr", "timezone", "overlap", "catchup", "jitter_secs", "end_at", "paused",
	"next_run_at", "created_at", "updated_at",
}

func (r *ScheduleRepo) UpsertSchedule(ctx context.Context, s *store.Schedule) error {
	sqlStr, args, err := squirrel.Insert("schedules").
		Columns(scheduleColumns...).
		Values(
			s.ID.String(), s.WorkflowID, s.CronExpr, s.Timezone, s.Overlap, s.Catchup, s.JitterSecs, s.EndAt,
			s.Paused, s.NextRunAt, squirrel.Expr("now()"), squirrel.Expr("now()"),
		).
		PlaceholderFormat(squirrel.Dollar).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			cron_expr = EXCLUDED.cron_expr,
			timezone = EXCLUDED.timezone,
			overlap = EXCLUDED.overlap,
			catchup = EXCLUDED.catchup,
			jitter_secs = EXCLUDED.jitter_secs,
			end_at = EXCLUDED.end_at,
			paused = EXCLUDED.paused,
			next_run_at = EXCLUDED.next_run_at,
			updated_at = now()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upserting schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) PauseSchedule(ctx context.Context, id core.ID, paused bool) error {
	sqlStr, args, err := squirrel.Update("schedules").
		Set("paused", paused).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("pausing schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) DeleteSchedule(ctx context.Context, id core.ID) error {
	sqlStr, args, err := squirrel.Delete("schedules").
		Where(squirrel.Eq{"id": id.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) GetSchedule(ctx context.Context, id core.ID) (*store.Schedule, error) {
	sqlStr, args, err := squirrel.Select(scheduleColumns...).
		From("schedules").
		Where(squirrel.Eq{"id": id.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var row scheduleRow
	if err := pgxscan.Get(ctx, r.db, &row, sqlStr, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}
	return row.toDomain(), nil
}

func (r *ScheduleRepo) ListActiveSchedules(ctx context.Context) ([]*store.Schedule, error) {
	sqlStr, args, err := squirrel.Select(scheduleColumns...).
		From("schedules").
		Where(squirrel.Eq{"paused": false}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var rows []scheduleRow
	if err := pgxscan.Select(ctx, r.db, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("scanning schedules: %w", err)
	}
	out := make([]*store.Schedule, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// CreateScheduleRun inserts a fired-tick row. ON CONFLICT DO NOTHING on
// idempotency_key means a retried tick after a scheduler crash is a no-op
// rather than a duplicate dispatch (spec.md §4.2/§8 scenario on restart).
func (r *ScheduleRepo) CreateScheduleRun(ctx context.Context, sr *store.ScheduleRun) (bool, error) {
	status := sr.Status
	if status == "" {
		status = store.ScheduleRunEnqueued
	}
	sqlStr, args, err := squirrel.Insert("schedule_runs").
		Columns("schedule_id", "due_at", "idempotency_key", "status").
		Values(sr.ScheduleID.String(), sr.DueAt, sr.IdempotencyKey, string(status)).
		PlaceholderFormat(squirrel.Dollar).
		Suffix("ON CONFLICT (idempotency_key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("creating schedule run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ScheduleRepo) AttachRun(ctx context.Context, scheduleID core.ID, dueAt time.Time, runID core.ID) error {
	sqlStr, args, err := squirrel.Update("schedule_runs").
		Set("run_id", runID.String()).
		Set("status", string(store.ScheduleRunStarted)).
		Where(squirrel.Eq{"schedule_id": scheduleID.String(), "due_at": dueAt}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("attaching run: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) SetScheduleRunStatus(
	ctx context.Context,
	scheduleID core.ID,
	dueAt time.Time,
	status store.ScheduleRunStatus,
) error {
	sqlStr, args, err := squirrel.Update("schedule_runs").
		Set("status", string(status)).
		Where(squirrel.Eq{"schedule_id": scheduleID.String(), "due_at": dueAt}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("setting schedule run status: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) AdvanceNextRunAt(ctx context.Context, scheduleID core.ID, nextRunAt time.Time) error {
	sqlStr, args, err := squirrel.Update("schedules").
		Set("next_run_at", nextRunAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": scheduleID.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("advancing next_run_at: %w", err)
	}
	return nil
}

func (r *ScheduleRepo) HasInflightScheduleRun(ctx context.Context, scheduleID core.ID) (bool, error) {
	sqlStr, args, err := squirrel.Select("count(*)").
		From("schedule_runs").
		Where(squirrel.Eq{
			"schedule_id": scheduleID.String(),
			"status":      []string{string(store.ScheduleRunEnqueued), string(store.ScheduleRunStarted)},
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building select: %w", err)
	}
	var count int
	if err := pgxscan.Get(ctx, r.db, &count, sqlStr, args...); err != nil {
		return false, fmt.Errorf("counting inflight schedule runs: %w", err)
	}
	return count > 0, nil
}
