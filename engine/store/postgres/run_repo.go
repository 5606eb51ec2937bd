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

// RunRepo is the postgres-backed store.RunStore.
type RunRepo struct {
	db DB
}

func NewRunRepo(db DB) *RunRepo { return &RunRepo{db: db} }

type runRow struct {
	ID            string     `db:"id"`
	WorkflowID    string     `db:"workflow_id"`
	Version       int        `db:"version"`
	Status        string     `db:"status"`
	TriggerInstID string     `db:"trigger_inst_id"`
	Globals       []byte     `db:"globals"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
	Error         string     `db:"error"`
}

func (row runRow) toDomain() (*store.Run, error) {
	globals, err := fromJSONBMap(row.Globals)
	if err != nil {
		return nil, err
	}
	return &store.Run{
		ID:            core.ID(row.ID),
		WorkflowID:    row.WorkflowID,
		Version:       row.Version,
		Status:        store.RunStatus(row.Status),
		TriggerInstID: row.TriggerInstID,
		Globals:       globals,
		StartedAt:     row.StartedAt,
		FinishedAt:    row.FinishedAt,
		Error:         row.Error,
	}, nil
}

var runColumns = []string{
	"id", "workflow_id", "version", "status", "trigger_inst_id", "globals",
	"started_at", "finished_at", "error",
}

func (r *RunRepo) CreateRun(ctx context.Context, run *store.Run) error {
	globals, err := toJSONB(run.Globals)
	if err != nil {
		return err
	}
	sqlStr, args, err := squirrel.Insert("runs").
		Columns(runColumns...).
		Values(
			run.ID.String(), run.WorkflowID, run.Version, string(run.Status), run.TriggerInstID, globals,
			squirrel.Expr("now()"), run.FinishedAt, run.Error,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

func (r *RunRepo) GetRun(ctx context.Context, id core.ID) (*store.Run, error) {
	sqlStr, args, err := squirrel.Select(runColumns...).
		From("runs").
		Where(squirrel.Eq{"id": id.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var row runRow
	if err := pgxscan.Get(ctx, r.db, &row, sqlStr, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return row.toDomain()
}

func (r *RunRepo) SetRunStatus(
	ctx context.Context,
	id core.ID,
	status store.RunStatus,
	finishedAt *time.Time,
	runErr string,
) error {
	b := squirrel.Update("runs").
		Set("status", string(status)).
		Where(squirrel.Eq{"id": id.String()})
	if finishedAt != nil {
		b = b.Set("finished_at", *finishedAt)
	}
	if runErr != "" {
		b = b.Set("error", runErr)
	}
	sqlStr, args, err := b.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("setting run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type nodeExecutionRow struct {
	RunID      string     `db:"run_id"`
	NodeID     string     `db:"node_id"`
	Status     string     `db:"status"`
	Attempt    int        `db:"attempt"`
	IdemKey    string     `db:"idem_key"`
	Input      []byte     `db:"input"`
	Output     []byte     `db:"output"`
	Error      string     `db:"error"`
	StartedAt  *time.Time `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

func (row nodeExecutionRow) toDomain() (*store.NodeExecution, error) {
	input, err := fromJSONBMap(row.Input)
	if err != nil {
		return nil, err
	}
	output, err := fromJSONBMap(row.Output)
	if err != nil {
		return nil, err
	}
	return &store.NodeExecution{
		RunID:      core.ID(row.RunID),
		NodeID:     row.NodeID,
		Status:     store.NodeStatus(row.Status),
		Attempt:    row.Attempt,
		IdemKey:    row.IdemKey,
		Input:      input,
		Output:     output,
		Error:      row.Error,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}, nil
}

var nodeExecutionColumns = []string{
	"run_id", "node_id", "status", "attempt", "idem_key", "input", "output", "error",
	"started_at", "finished_at",
}

// UpsertNodeExecution writes the current state of one node's execution.
// It is called on every status transition (PENDING -> RUNNING -> SUCCESS
// / ERROR), so ON CONFLICT DO UPDATE rather than a separate insert/update
// branch keeps the Executor's hot path a single round trip.
func (r *RunRepo) UpsertNodeExecution(ctx context.Context, ne *store.NodeExecution) error {
	input, err := toJSONB(ne.Input)
	if err != nil {
		return err
	}
	output, err := toJSONB(ne.Output)
	if err != nil {
		return err
	}
	sqlStr, args, err := squirrel.Insert("node_executions").
		Columns(nodeExecutionColumns...).
		Values(
			ne.RunID.String(), ne.NodeID, string(ne.Status), ne.Attempt, ne.IdemKey, input, output, ne.Error,
			ne.StartedAt, ne.FinishedAt,
		).
		PlaceholderFormat(squirrel.Dollar).
		Suffix(`ON CONFLICT (run_id, node_id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt = EXCLUDED.attempt,
			idem_key = EXCLUDED.idem_key,
			input = EXCLUDED.input,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("upserting node execution: %w", err)
	}
	return nil
}

func (r *RunRepo) GetNodeExecution(ctx context.Context, runID core.ID, nodeID string) (*store.NodeExecution, error) {
	sqlStr, args, err := squirrel.Select(nodeExecutionColumns...).
		From("node_executions").
		Where(squirrel.Eq{"run_id": runID.String(), "node_id": nodeID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var row nodeExecutionRow
	if err := pgxscan.Get(ctx, r.db, &row, sqlStr, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scanning node execution: %w", err)
	}
	return row.toDomain()
}

func (r *RunRepo) ListNodeExecutions(ctx context.Context, runID core.ID) ([]*store.NodeExecution, error) {
	sqlStr, args, err := squirrel.Select(nodeExecutionColumns...).
		From("node_executions").
		Where(squirrel.Eq{"run_id": runID.String()}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var rows []nodeExecutionRow
	if err := pgxscan.Select(ctx, r.db, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("scanning node executions: %w", err)
	}
	out := make([]*store.NodeExecution, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// RecordJoinArrival inserts the arrival inside its own transaction. The
// join-quorum check that follows it (ListJoinArrivals) is a separate call
// that runs outside that transaction.
func (r *RunRepo) RecordJoinArrival(ctx context.Context, a *store.JoinArrival) error {
	return withTransaction(ctx, r.db, func(tx pgx.Tx) error {
		sqlStr, args, err := squirrel.Insert("join_arrivals").
			Columns("run_id", "join_node_id", "from_node_id").
			Values(a.RunID.String(), a.JoinNodeID, a.FromNodeID).
			PlaceholderFormat(squirrel.Dollar).
			Suffix("ON CONFLICT (run_id, join_node_id, from_node_id) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("building insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("recording join arrival: %w", err)
		}
		return nil
	})
}

func (r *RunRepo) ListJoinArrivals(ctx context.Context, runID core.ID, joinNodeID string) ([]*store.JoinArrival, error) {
	sqlStr, args, err := squirrel.Select("run_id", "join_node_id", "from_node_id", "arrived_at").
		From("join_arrivals").
		Where(squirrel.Eq{"run_id": runID.String(), "join_node_id": joinNodeID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	type row struct {
		RunID      string    `db:"run_id"`
		JoinNodeID string    `db:"join_node_id"`
		FromNodeID string    `db:"from_node_id"`
		ArrivedAt  time.Time `db:"arrived_at"`
	}
	var rows []row
	if err := pgxscan.Select(ctx, r.db, &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("scanning join arrivals: %w", err)
	}
	out := make([]*store.JoinArrival, 0, len(rows))
	for _, rr := range rows {
		out = append(out, &store.JoinArrival{
			RunID:      core.ID(rr.RunID),
			JoinNodeID: rr.JoinNodeID,
			FromNodeID: rr.FromNodeID,
			ArrivedAt:  rr.ArrivedAt,
		})
	}
	return out, nil
}
