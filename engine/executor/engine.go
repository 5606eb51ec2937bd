// Package executor is the Executor of spec.md §4.3: given a trigger
// activation it drives one workflow run's DAG to a terminal status,
// orchestrating gateway routing, parallel fan-out, join synchronization,
// loops, and action invocation with retries and idempotency.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/executor/idemcache"
	"github.com/realtalishaw/super-enigma/engine/expr"
	"github.com/realtalishaw/super-enigma/engine/infra/cache"
	"github.com/realtalishaw/super-enigma/engine/invoker"
	"github.com/realtalishaw/super-enigma/engine/store"
	"github.com/realtalishaw/super-enigma/pkg/logger"
)

// defaultLeaseTTL is the run-ownership lease's TTL (spec.md §5: "short TTL,
// renewed during work"). It must comfortably exceed one dispatch-loop
// iteration's typical latency so a healthy worker never loses its own
// lease; a crashed worker's run becomes takeover-eligible after this long.
const defaultLeaseTTL = 30 * time.Second

// Config bounds the Engine's behavior in ways spec.md §6/§7 name as
// environment-tunable: MAX_RETRY_DELAY_MS caps both backoff curves
// (engine/executor/retry.go); LeaseTTL sets the run-ownership lease's
// time-to-live.
type Config struct {
	MaxRetryDelay time.Duration
	LeaseTTL      time.Duration
}

// DefaultConfig mirrors spec.md §7's stated default MAX_RETRY_DELAY_MS.
func DefaultConfig() Config {
	return Config{MaxRetryDelay: 30 * time.Second, LeaseTTL: defaultLeaseTTL}
}

// Engine is the Executor. One Engine instance serves every run; per-run
// state lives only on the stack of the goroutine driving that run
// (spec.md §5: "Two runs never share in-memory context").
type Engine struct {
	workflows store.WorkflowStore
	runs      store.RunStore
	invoker   invoker.Invoker
	idem      *idemcache.Cache
	exprEnv   *expr.Env
	locks     cache.LockManager
	cfg       Config
}

// New wires the Executor's collaborators (spec.md §6): a Workflow Store to
// load DAGs, a Run Store to persist run/node/join state, a Tool Invoker to
// perform action side effects, an idempotency cache, the shared expression
// environment, and a LockManager for run-ownership leases.
func New(
	workflows store.WorkflowStore,
	runs store.RunStore,
	inv invoker.Invoker,
	idem *idemcache.Cache,
	exprEnv *expr.Env,
	locks cache.LockManager,
	cfg Config,
) *Engine {
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	return &Engine{
		workflows: workflows,
		runs:      runs,
		invoker:   inv,
		idem:      idem,
		exprEnv:   exprEnv,
		locks:     locks,
		cfg:       cfg,
	}
}

// StartScheduledRun implements scheduler.Dispatcher: the Scheduler's tick
// loop calls this with the fired instant (spec.md §4.3 "Schedule path").
// The synthetic payload is `{fired_at: run_at}` per the spec; the run is
// driven to completion on a background goroutine, so this returns as soon
// as the run row exists.
func (e *Engine) StartScheduledRun(ctx context.Context, workflowID string, firedAt time.Time) (core.ID, error) {
	dv, err := e.workflows.LoadLatestDAG(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("executor: load dag for %q: %w", workflowID, err)
	}
	idx := dag.BuildIndex(dv.Document)
	trigger := firstScheduleTrigger(idx)
	if trigger == nil {
		return "", fmt.Errorf("executor: workflow %q has no schedule-based trigger", workflowID)
	}
	payload := map[string]any{"fired_at": firedAt.UTC().Format(time.RFC3339)}
	return e.activate(ctx, dv, trigger.ID, payload)
}

// Activate implements the event path of spec.md §4.3: the caller has
// already resolved an incoming delivery to a trigger_instance_id (an
// Event Source concern, out of scope per spec.md §9 open question (b));
// this creates the run and drives it to completion in the background.
func (e *Engine) Activate(
	ctx context.Context, workflowID string, triggerNodeID string, payload map[string]any,
) (core.ID, error) {
	dv, err := e.workflows.LoadLatestDAG(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("executor: load dag for %q: %w", workflowID, err)
	}
	return e.activate(ctx, dv, triggerNodeID, payload)
}

func firstScheduleTrigger(idx *dag.Index) *dag.Node {
	for _, n := range idx.Triggers() {
		if td, ok := n.Data.(dag.TriggerData); ok && td.Kind == dag.TriggerScheduleBased {
			return n
		}
	}
	return nil
}

func (e *Engine) activate(
	ctx context.Context, dv *store.DAGVersion, triggerNodeID string, payload map[string]any,
) (core.ID, error) {
	idx := dag.BuildIndex(dv.Document)
	trigger, ok := idx.Node(triggerNodeID)
	if !ok {
		return "", fmt.Errorf("executor: trigger node %q not found in %q", triggerNodeID, dv.WorkflowID)
	}
	runID := core.MustNewID()
	triggerInstID := core.DigestKey(dv.WorkflowID, fmt.Sprint(dv.Version), triggerNodeID)
	run := &store.Run{
		ID:            runID,
		WorkflowID:    dv.WorkflowID,
		Version:       dv.Version,
		Status:        store.RunRunning,
		TriggerInstID: triggerInstID,
		Globals:       globalsVars(dv.Document),
		StartedAt:     time.Now().UTC(),
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("executor: create run: %w", err)
	}

	w := &worker{
		eng:            e,
		run:            run,
		doc:            dv.Document,
		idx:            idx,
		rc:             newRunContext(payload),
		globals:        globalsVars(dv.Document),
		loopIterations: map[string]int{},
		log:            logger.FromContext(ctx).With("run_id", runID.String(), "workflow_id", dv.WorkflowID),
	}

	// trigger node is terminal immediately (spec.md §4.3: "marked SKIPPED
	// after activation"); its successors seed the ready queue.
	if err := w.finishNode(ctx, trigger.ID, store.NodeSkipped, nil, ""); err != nil {
		return runID, err
	}
	w.enqueueSuccessors(trigger.ID, store.NodeSkipped)

	go w.drive(context.WithoutCancel(ctx))
	return runID, nil
}

func globalsVars(doc *dag.Document) map[string]any {
	if doc.Globals == nil || doc.Globals.Vars == nil {
		return map[string]any{}
	}
	return doc.Globals.Vars
}
