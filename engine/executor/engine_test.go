package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/executor"
	"github.com/realtalishaw/super-enigma/engine/executor/idemcache"
	"github.com/realtalishaw/super-enigma/engine/expr"
	"github.com/realtalishaw/super-enigma/engine/invoker"
	"github.com/realtalishaw/super-enigma/engine/store"
)

func newTestEngine(t *testing.T, inv invoker.Invoker) (*executor.Engine, *memWorkflowStore, *memRunStore) {
	t.Helper()
	exprEnv, err := expr.NewEnv()
	if err != nil {
		t.Fatalf("expr.NewEnv: %v", err)
	}
	idem, err := idemcache.New(1<<20, idemcache.MinTTL)
	if err != nil {
		t.Fatalf("idemcache.New: %v", err)
	}
	t.Cleanup(idem.Close)
	workflows := newMemWorkflowStore()
	runs := newMemRunStore()
	eng := executor.New(workflows, runs, inv, idem, exprEnv, memLockManager{}, executor.Config{
		MaxRetryDelay: time.Second,
		LeaseTTL:      time.Minute,
	})
	return eng, workflows, runs
}

// awaitTerminal polls the run store until the run leaves RUNNING, since
// drive() executes on a detached background goroutine with no
// synchronous completion signal.
func awaitTerminal(t *testing.T, runs *memRunStore, id core.ID) *store.Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, err := runs.GetRun(context.Background(), id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if r.Status != store.RunRunning {
			return r
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal status in time", id)
	return nil
}

func actionNode(id, tool, action string) dag.Node {
	return dag.Node{
		ID:   id,
		Type: dag.NodeAction,
		Data: dag.ActionData{
			Tool:          tool,
			Action:        action,
			InputTemplate: map[string]any{"id": id},
		},
	}
}

// TestEngine_TrivialLinear mirrors spec.md §8 scenario 1: T -> A1 -> A2,
// both actions succeed, trigger ends SKIPPED and both actions DONE.
func TestEngine_TrivialLinear(t *testing.T) {
	inv := invoker.NewFake()
	inv.Script("mail", "send", &invoker.Result{Output: map[string]any{"ok": true}}, nil)
	inv.Script("mail", "archive", &invoker.Result{Output: map[string]any{"ok": true}}, nil)

	eng, workflows, runs := newTestEngine(t, inv)

	doc := &dag.Document{
		Stage:      dag.StageDAG,
		WorkflowID: "wf-linear",
		Version:    "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			actionNode("a1", "mail", "send"),
			actionNode("a2", "mail", "archive"),
		},
		Edges: []dag.Edge{
			{ID: "e1", Source: "t1", Target: "a1"},
			{ID: "e2", Source: "a1", Target: "a2", When: dag.WhenSuccess},
		},
	}
	workflows.put(&store.DAGVersion{WorkflowID: "wf-linear", Version: 1, Document: doc})

	runID, err := eng.Activate(context.Background(), "wf-linear", "t1", map[string]any{})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	run := awaitTerminal(t, runs, runID)
	if run.Status != store.RunSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED (error=%s)", run.Status, run.Error)
	}

	wantStatus := map[string]store.NodeStatus{"t1": store.NodeSkipped, "a1": store.NodeSuccess, "a2": store.NodeSuccess}
	for nodeID, want := range wantStatus {
		ne, err := runs.GetNodeExecution(context.Background(), runID, nodeID)
		if err != nil {
			t.Fatalf("GetNodeExecution(%s): %v", nodeID, err)
		}
		if ne.Status != want {
			t.Errorf("node %s status = %s, want %s", nodeID, ne.Status, want)
		}
	}

	calls := inv.Calls()
	if len(calls) != 2 {
		t.Fatalf("invoker called %d times, want 2", len(calls))
	}
	if calls[0].IdempotencyKey == calls[1].IdempotencyKey {
		t.Errorf("expected distinct idempotency keys, got %q twice", calls[0].IdempotencyKey)
	}
}

// TestEngine_RetryAndRecover mirrors spec.md §8 scenario 2: an action
// with a linear retry policy fails twice, then succeeds on the third
// attempt.
func TestEngine_RetryAndRecover(t *testing.T) {
	inv := invoker.NewFake()
	inv.Script("flaky", "call", nil, &invoker.Error{Kind: invoker.Retriable, Message: "boom 1"})
	inv.Script("flaky", "call", nil, &invoker.Error{Kind: invoker.Retriable, Message: "boom 2"})
	inv.Script("flaky", "call", &invoker.Result{Output: map[string]any{"ok": true}}, nil)

	eng, workflows, runs := newTestEngine(t, inv)

	doc := &dag.Document{
		Stage:      dag.StageDAG,
		WorkflowID: "wf-retry",
		Version:    "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{
				ID:   "a1",
				Type: dag.NodeAction,
				Data: dag.ActionData{
					Tool:          "flaky",
					Action:        "call",
					InputTemplate: map[string]any{},
					Retry:         &dag.RetryPolicy{Retries: 2, Backoff: dag.BackoffLinear, DelayMS: 10},
				},
			},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
	workflows.put(&store.DAGVersion{WorkflowID: "wf-retry", Version: 1, Document: doc})

	start := time.Now()
	runID, err := eng.Activate(context.Background(), "wf-retry", "t1", map[string]any{})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	run := awaitTerminal(t, runs, runID)
	elapsed := time.Since(start)

	if run.Status != store.RunSucceeded {
		t.Fatalf("run status = %s, want SUCCEEDED (error=%s)", run.Status, run.Error)
	}
	if len(inv.Calls()) != 3 {
		t.Fatalf("invoker called %d times, want 3", len(inv.Calls()))
	}
	// linear backoff: attempt 1 waits 10ms, attempt 2 waits 20ms => >=30ms.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %s, want >= 30ms", elapsed)
	}

	ne, err := runs.GetNodeExecution(context.Background(), runID, "a1")
	if err != nil {
		t.Fatalf("GetNodeExecution: %v", err)
	}
	if ne.Status != store.NodeSuccess {
		t.Errorf("a1 status = %s, want SUCCESS", ne.Status)
	}
}

// TestEngine_ParallelJoinNeverFiresOnUnrecoverableBranch mirrors spec.md
// §8 scenario 6: T -> P -> {B1, B2} -> J(mode=all) -> A3, B2 errors with
// no error edge, so J can never reach quorum. The join is detected
// deadlocked and finalized ERROR, A3 is never reached and finalized
// SKIPPED, and the run finishes FAILED rather than hanging.
func TestEngine_ParallelJoinNeverFiresOnUnrecoverableBranch(t *testing.T) {
	inv := invoker.NewFake()
	inv.Script("ok", "do", &invoker.Result{Output: map[string]any{"ok": true}}, nil)
	inv.Script("bad", "do", nil, &invoker.Error{Kind: invoker.Fatal, Message: "nope"})
	inv.Script("after", "do", &invoker.Result{Output: map[string]any{"ok": true}}, nil)

	eng, workflows, runs := newTestEngine(t, inv)

	doc := &dag.Document{
		Stage:      dag.StageDAG,
		WorkflowID: "wf-join",
		Version:    "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "p1", Type: dag.NodeParallel, Data: dag.ParallelData{}},
			actionNode("b1", "ok", "do"),
			actionNode("b2", "bad", "do"),
			{ID: "j1", Type: dag.NodeJoin, Data: dag.JoinData{Mode: dag.JoinAll}},
			actionNode("a3", "after", "do"),
		},
		Edges: []dag.Edge{
			{ID: "e1", Source: "t1", Target: "p1"},
			{ID: "e2", Source: "p1", Target: "b1"},
			{ID: "e3", Source: "p1", Target: "b2"},
			{ID: "e4", Source: "b1", Target: "j1", When: dag.WhenSuccess},
			{ID: "e5", Source: "b2", Target: "j1", When: dag.WhenSuccess},
			{ID: "e6", Source: "j1", Target: "a3", When: dag.WhenSuccess},
		},
	}
	workflows.put(&store.DAGVersion{WorkflowID: "wf-join", Version: 1, Document: doc})

	runID, err := eng.Activate(context.Background(), "wf-join", "t1", map[string]any{})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	run := awaitTerminal(t, runs, runID)
	if run.Status != store.RunFailed {
		t.Fatalf("run status = %s, want FAILED", run.Status)
	}

	// j1 itself is detected deadlocked (both predecessors terminal, quorum
	// never reachable) and finalized ERROR rather than left pending forever.
	j1, err := runs.GetNodeExecution(context.Background(), runID, "j1")
	if err != nil {
		t.Fatalf("GetNodeExecution(j1): %v", err)
	}
	if j1.Status != store.NodeError {
		t.Errorf("j1 status = %s, want ERROR (join deadlock detected)", j1.Status)
	}

	a3, err := runs.GetNodeExecution(context.Background(), runID, "a3")
	if err != nil {
		t.Fatalf("GetNodeExecution(a3): %v", err)
	}
	if a3.Status != store.NodeSkipped {
		t.Errorf("a3 status = %s, want SKIPPED", a3.Status)
	}

	b2, err := runs.GetNodeExecution(context.Background(), runID, "b2")
	if err != nil {
		t.Fatalf("GetNodeExecution(b2): %v", err)
	}
	if b2.Status != store.NodeError {
		t.Errorf("b2 status = %s, want ERROR", b2.Status)
	}
}
