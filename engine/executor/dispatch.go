package executor

import (
	"context"
	"sync"
	"time"

	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/infra/cache"
	"github.com/realtalishaw/super-enigma/engine/store"
	"github.com/realtalishaw/super-enigma/pkg/logger"
)

// readyItem is one entry in a run's ready queue: a node to dispatch and,
// for a loop_foreach shard, the per-iteration bindings (`item`, `index`)
// that only that shard's expression evaluations should see.
type readyItem struct {
	nodeID string
	from   string
	extra  map[string]any
}

// nextHop is the continuation processNode hands back to its caller: a
// node to dispatch next, carrying forward any shard-local bindings and
// the id of the node that routed into it (join arrival bookkeeping needs
// to know which predecessor just arrived).
type nextHop struct {
	nodeID string
	from   string
	extra  map[string]any
}

// worker drives exactly one run from activation to a terminal status. It
// is never shared across runs (spec.md §5: "Two runs never share
// in-memory context"); the dispatch loop that owns it is single-threaded
// except for loop_foreach's bounded shard goroutines, which only ever
// call back into processNode, serialized where it mutates shared state.
type worker struct {
	eng            *Engine
	run            *store.Run
	doc            *dag.Document
	idx            *dag.Index
	rc             *runContext
	globals        map[string]any
	log            logger.Logger
	lock           cache.Lock
	loopMu         sync.Mutex
	loopIterations map[string]int
	joinMu         sync.Mutex
	queueMu        sync.Mutex
	ready          []readyItem
}

func (w *worker) enqueue(item readyItem) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	w.ready = append(w.ready, item)
}

func (w *worker) pop() (readyItem, bool) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	if len(w.ready) == 0 {
		return readyItem{}, false
	}
	item := w.ready[0]
	w.ready = w.ready[1:]
	return item, true
}

// enqueueSuccessors routes nodeID's eligible outgoing edges into the
// shared ready queue; used for node types whose continuation is
// edge-driven rather than a direct node-id field (spec.md §4.3: "route
// successors: an edge is eligible iff when matches node status... and
// condition... evaluates true").
func (w *worker) enqueueSuccessors(nodeID string, status store.NodeStatus) {
	for _, hop := range w.eligibleSuccessors(nodeID, status) {
		w.enqueue(readyItem{nodeID: hop.nodeID, from: hop.from, extra: hop.extra})
	}
}

func (w *worker) eligibleSuccessors(nodeID string, status store.NodeStatus) []nextHop {
	var out []nextHop
	for _, e := range w.idx.Out(nodeID) {
		if !edgeMatchesStatus(e.EffectiveWhen(), status) {
			continue
		}
		if e.Condition != "" {
			ok, err := w.evalCondition(e.Condition, nil)
			if err != nil || !ok {
				continue
			}
		}
		out = append(out, nextHop{nodeID: e.Target, from: nodeID})
	}
	return out
}

// directHop wraps a single gateway/loop-field successor (a node id named
// directly by the node's own data, not discovered via edge iteration) in
// the same nextHop shape eligibleSuccessors produces.
func directHop(nodeID, from string, extra map[string]any) []nextHop {
	if nodeID == "" {
		return nil
	}
	return []nextHop{{nodeID: nodeID, from: from, extra: extra}}
}

func edgeMatchesStatus(when dag.EdgeWhen, status store.NodeStatus) bool {
	switch when {
	case dag.WhenAlways:
		return true
	case dag.WhenSuccess:
		return status == store.NodeSuccess
	case dag.WhenError:
		return status == store.NodeError
	default:
		return false
	}
}

func (w *worker) evalCondition(exprStr string, extra map[string]any) (bool, error) {
	prog, err := w.eng.exprEnv.Compile(exprStr)
	if err != nil {
		return false, err
	}
	act := w.rc.activation(w.globals)
	mergeExtra(act.Vars, extra)
	ok, err := prog.EvalBool(act)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func mergeExtra(vars map[string]any, extra map[string]any) {
	for k, v := range extra {
		vars[k] = v
	}
}

// finishNode persists a node's terminal state and mirrors it into the
// run context (spec.md §4.3: output_vars into context.vars, node outputs
// addressable at node[id].outputs).
func (w *worker) finishNode(
	ctx context.Context, nodeID string, status store.NodeStatus, output map[string]any, errMsg string,
) error {
	now := time.Now().UTC()
	ne := &store.NodeExecution{
		RunID:      w.run.ID,
		NodeID:     nodeID,
		Status:     status,
		Output:     output,
		Error:      errMsg,
		FinishedAt: &now,
	}
	if err := w.eng.runs.UpsertNodeExecution(ctx, ne); err != nil {
		return err
	}
	if status == store.NodeSuccess {
		w.rc.setNodeOutputs(nodeID, output)
	}
	if status == store.NodeError {
		w.rc.setError(nodeID, errMsg)
	}
	return nil
}

// drive acquires the run-ownership lease and processes the ready queue
// to exhaustion, then finalizes the run. ctx should already be detached
// from the activating request (context.WithoutCancel) so the run survives
// the HTTP/webhook handler returning; a run-level deadline, if any, is
// applied here from globals.run_timeout_ms.
func (w *worker) drive(ctx context.Context) {
	if w.doc.Globals != nil && w.doc.Globals.RunTimeoutMS != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*w.doc.Globals.RunTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	lock, ok := w.eng.locks.Acquire(ctx, "run:"+w.run.ID.String(), w.eng.cfg.LeaseTTL)
	if ok != nil {
		w.log.Error("could not acquire run-ownership lease, abandoning", "error", ok)
		return
	}
	w.lock = lock
	defer func() { _ = w.lock.Release(context.Background()) }()

	for {
		if !w.lock.IsHeld() {
			w.log.Error("run-ownership lease lost, abandoning run", "error", ErrLeaseLost)
			return
		}
		item, more := w.pop()
		if !more {
			break
		}
		if err := ctx.Err(); err != nil {
			w.abortPending(ctx, item.nodeID, err)
			continue
		}
		next, err := w.processNode(ctx, item.nodeID, item.from, item.extra)
		if err != nil {
			w.log.Error("node processing failed", "node_id", item.nodeID, "error", err)
			continue
		}
		for _, hop := range next {
			w.enqueue(readyItem{nodeID: hop.nodeID, from: hop.from, extra: hop.extra})
		}
	}
	w.finalize(context.WithoutCancel(ctx))
}

// abortPending marks a still-queued node ERROR with the run-level
// cancellation/timeout reason instead of dispatching it (spec.md §5:
// "Pending queue entries are discarded").
func (w *worker) abortPending(ctx context.Context, nodeID string, cause error) {
	reason := "cancelled"
	if cause == context.DeadlineExceeded {
		reason = "timeout"
	}
	_ = w.finishNode(ctx, nodeID, store.NodeError, nil, reason)
}
