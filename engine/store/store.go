// Package store defines the Workflow Store and Run Store the control
// plane persists to (spec.md §6): DAG documents keyed by (workflow_id,
// version), cron schedules and their fired-run ledger, and the
// per-run/per-node execution state the Executor reads and writes.
// Concrete drivers (engine/store/postgres) implement these interfaces;
// callers in engine/scheduler and engine/executor depend only on them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/dag"
)

// ErrNotFound is returned by a Get/Load when no matching row exists.
var ErrNotFound = errors.New("store: not found")

// RunStatus is the lifecycle state of one workflow run (spec.md §4.3/§8).
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCanceled  RunStatus = "CANCELED"
)

// NodeStatus is the lifecycle state of one node execution within a run.
type NodeStatus string

const (
	NodePending NodeStatus = "PENDING"
	NodeRunning NodeStatus = "RUNNING"
	NodeSuccess NodeStatus = "SUCCESS"
	NodeError   NodeStatus = "ERROR"
	NodeSkipped NodeStatus = "SKIPPED"
)

// DAGVersion is one immutable compiled document stored under a workflow_id.
type DAGVersion struct {
	WorkflowID string
	Version    int
	Document   *dag.Document
	CreatedAt  time.Time
}

// Run is one execution of a workflow's DAG (spec.md §3 runs table).
type Run struct {
	ID             core.ID
	WorkflowID     string
	Version        int
	Status         RunStatus
	TriggerInstID  string
	Globals        map[string]any
	StartedAt      time.Time
	FinishedAt     *time.Time
	Error          string
}

// NodeExecution is one node's execution record within a run (spec.md §3
// node_executions table).
type NodeExecution struct {
	RunID      core.ID
	NodeID     string
	Status     NodeStatus
	Attempt    int
	IdemKey    string
	Input      map[string]any
	Output     map[string]any
	Error      string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// JoinArrival records one upstream branch's arrival at a join node, the
// unit spec.md §4.3's quorum/all join evaluation counts against.
type JoinArrival struct {
	RunID      core.ID
	JoinNodeID string
	FromNodeID string
	ArrivedAt  time.Time
}

// ScheduleRunStatus is the lifecycle of one fired tick, independent of
// the workflow run it may (or may not yet) have started.
type ScheduleRunStatus string

const (
	ScheduleRunEnqueued ScheduleRunStatus = "ENQUEUED"
	ScheduleRunStarted  ScheduleRunStatus = "STARTED"
	ScheduleRunFailed   ScheduleRunStatus = "FAILED"
	ScheduleRunSkipped  ScheduleRunStatus = "SKIPPED"
)

// Schedule is one cron trigger registration (spec.md §3 schedules table).
type Schedule struct {
	ID          core.ID
	WorkflowID  string
	CronExpr    string
	Timezone    string
	Overlap     string // "skip" | "queue" | "allow"
	Catchup     string // "none" | "fire_immediately" | "spread"
	JitterSecs  int
	EndAt       *time.Time
	Paused      bool
	NextRunAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduleRun is one fired tick of a Schedule, the idempotency-keyed row
// that prevents double-dispatch across scheduler restarts (spec.md §4.2).
type ScheduleRun struct {
	ScheduleID     core.ID
	DueAt          time.Time
	IdempotencyKey string
	Status         ScheduleRunStatus
	RunID          *core.ID
	CreatedAt      time.Time
}

// WorkflowStore persists immutable DAG documents.
type WorkflowStore interface {
	SaveDAG(ctx context.Context, v *DAGVersion) error
	LoadDAG(ctx context.Context, workflowID string, version int) (*DAGVersion, error)
	LoadLatestDAG(ctx context.Context, workflowID string) (*DAGVersion, error)
	ListVersions(ctx context.Context, workflowID string) ([]int, error)
}

// RunStore persists run and node-execution state.
type RunStore interface {
	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id core.ID) (*Run, error)
	SetRunStatus(ctx context.Context, id core.ID, status RunStatus, finishedAt *time.Time, runErr string) error

	UpsertNodeExecution(ctx context.Context, ne *NodeExecution) error
	GetNodeExecution(ctx context.Context, runID core.ID, nodeID string) (*NodeExecution, error)
	ListNodeExecutions(ctx context.Context, runID core.ID) ([]*NodeExecution, error)

	RecordJoinArrival(ctx context.Context, a *JoinArrival) error
	ListJoinArrivals(ctx context.Context, runID core.ID, joinNodeID string) ([]*JoinArrival, error)
}

// ScheduleStore persists cron schedules and their fired-run ledger.
type ScheduleStore interface {
	UpsertSchedule(ctx context.Context, s *Schedule) error
	PauseSchedule(ctx context.Context, id core.ID, paused bool) error
	DeleteSchedule(ctx context.Context, id core.ID) error
	GetSchedule(ctx context.Context, id core.ID) (*Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]*Schedule, error)

	// CreateScheduleRun inserts a fired-tick row, returning (false, nil)
	// without error when IdempotencyKey already exists (ON CONFLICT DO
	// NOTHING), so the scheduler can tell "already dispatched" from
	// "newly dispatched" without a separate existence check.
	CreateScheduleRun(ctx context.Context, sr *ScheduleRun) (created bool, err error)
	AttachRun(ctx context.Context, scheduleID core.ID, dueAt time.Time, runID core.ID) error
	SetScheduleRunStatus(ctx context.Context, scheduleID core.ID, dueAt time.Time, status ScheduleRunStatus) error
	AdvanceNextRunAt(ctx context.Context, scheduleID core.ID, nextRunAt time.Time) error

	// HasInflightScheduleRun reports whether any ScheduleRun for this
	// schedule is still ENQUEUED or STARTED, the check overlap_policy
	// "skip"/"queue" need (spec.md §4.2 step 4).
	HasInflightScheduleRun(ctx context.Context, scheduleID core.ID) (bool, error)
}
