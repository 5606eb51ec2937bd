package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/realtalishaw/super-enigma/engine/core"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
	"github.com/realtalishaw/super-enigma/engine/invoker"
	"github.com/realtalishaw/super-enigma/engine/store"
)

// processNode dispatches one node by its closed type tag (spec.md §9:
// "behavior is a function of type and data"), returning the hops the
// caller should continue to. from is the predecessor that routed into
// nodeID, needed by join arrival bookkeeping; it is empty for the
// trigger's own direct successors' first hop only in the degenerate
// case of a single-node workflow, which never reaches a join.
func (w *worker) processNode(ctx context.Context, nodeID, from string, extra map[string]any) ([]nextHop, error) {
	node, ok := w.idx.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("executor: node %q not found in dag", nodeID)
	}
	switch node.Type {
	case dag.NodeAction:
		return w.handleAction(ctx, node, extra)
	case dag.NodeGatewayIf:
		return w.handleGatewayIf(ctx, node, extra)
	case dag.NodeGatewaySwitch:
		return w.handleGatewaySwitch(ctx, node, extra)
	case dag.NodeParallel:
		return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, nil, "")
	case dag.NodeJoin:
		return w.handleJoin(ctx, node, from)
	case dag.NodeLoopWhile:
		return w.handleLoopWhile(ctx, node, extra)
	case dag.NodeLoopForeach:
		return w.handleLoopForeach(ctx, node, extra)
	case dag.NodeTrigger:
		return w.finishAndRoute(ctx, node.ID, store.NodeSkipped, nil, "")
	default:
		return nil, fmt.Errorf("executor: unknown node type %q", node.Type)
	}
}

func (w *worker) finishAndRoute(
	ctx context.Context, nodeID string, status store.NodeStatus, output map[string]any, errMsg string,
) ([]nextHop, error) {
	if err := w.finishNode(ctx, nodeID, status, output, errMsg); err != nil {
		return nil, err
	}
	return w.eligibleSuccessors(nodeID, status), nil
}

func (w *worker) activationWith(extra map[string]any) expr.Activation {
	act := w.rc.activation(w.globals)
	mergeExtra(act.Vars, extra)
	return act
}

// handleAction is spec.md §4.3's action handler: idempotency-cache check,
// argument rendering, invocation with retry, output extraction.
func (w *worker) handleAction(ctx context.Context, node *dag.Node, extra map[string]any) ([]nextHop, error) {
	data := node.Data.(dag.ActionData)
	act := w.activationWith(extra)
	rendered, err := renderTemplate(w.eng.exprEnv, data.InputTemplate, act)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}

	idemKey := core.DigestKey(w.run.ID.String(), node.ID, core.ETagFromAny(rendered))
	if cached, ok := w.eng.idem.Get(idemKey); ok {
		output, _ := cached.(map[string]any)
		w.applyOutputVars(node.ID, data.OutputVars, output)
		return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, output, "")
	}

	policy := effectiveRetry(data.Retry, w.doc.Globals)
	timeoutMS := effectiveTimeout(data.TimeoutMS, w.doc.Globals)

	var result *invoker.Result
	var lastErr *invoker.Error
	invokeErr := retry.Do(ctx, backoffFor(policy, w.eng.cfg.MaxRetryDelay), func(ctx context.Context) error {
		reqCtx, cancel := invoker.WithTimeout(ctx, invoker.Request{TimeoutMS: timeoutMS})
		defer cancel()
		res, ierr := w.eng.invoker.Invoke(reqCtx, invoker.Request{
			Tool:           data.Tool,
			Action:         data.Action,
			ConnectionID:   data.ConnectionID,
			Arguments:      rendered,
			TimeoutMS:      timeoutMS,
			IdempotencyKey: idemKey,
		})
		if ierr != nil {
			lastErr = ierr
			if ierr.Retriable() {
				return retry.RetryableError(ierr)
			}
			return ierr
		}
		result = res
		return nil
	})
	if invokeErr != nil {
		msg := invokeErr.Error()
		if lastErr != nil {
			msg = lastErr.Message
		}
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, msg)
	}

	output := result.Output
	w.applyOutputVars(node.ID, data.OutputVars, output)
	w.eng.idem.Set(idemKey, output)
	return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, output, "")
}

// applyOutputVars extracts each declared output_vars path into
// context.vars (spec.md §4.3); a path that fails to resolve against this
// particular result is logged and skipped rather than failing the node,
// since the Validator already confirmed the path is well-formed, not
// that every runtime shape satisfies it.
func (w *worker) applyOutputVars(nodeID string, outputVars map[string]string, output map[string]any) {
	for name, path := range outputVars {
		val, err := expr.ExtractOutputVar(output, path)
		if err != nil {
			w.log.Warn("output_vars path did not resolve", "node_id", nodeID, "var", name, "path", path, "error", err)
			continue
		}
		w.rc.setVar(name, val)
	}
}

func effectiveRetry(nodeRetry *dag.RetryPolicy, globals *dag.Globals) *dag.RetryPolicy {
	if nodeRetry != nil {
		return nodeRetry
	}
	if globals != nil && globals.Retry != nil {
		return globals.Retry
	}
	return &dag.RetryPolicy{Retries: 0, Backoff: dag.BackoffExponential, DelayMS: 0}
}

func effectiveTimeout(nodeTimeout *int, globals *dag.Globals) int {
	if nodeTimeout != nil {
		return *nodeTimeout
	}
	if globals != nil && globals.TimeoutMS != nil {
		return *globals.TimeoutMS
	}
	return 0
}

// handleGatewayIf evaluates branches in declared order; the chosen
// successor is the branch's own `to` field, not edge iteration (spec.md
// §4.3: "first true selects to; otherwise else_to").
func (w *worker) handleGatewayIf(ctx context.Context, node *dag.Node, extra map[string]any) ([]nextHop, error) {
	data := node.Data.(dag.GatewayIfData)
	act := w.activationWith(extra)
	for _, br := range data.Branches {
		prog, err := w.eng.exprEnv.Compile(br.Expr)
		if err != nil {
			return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
		}
		ok, err := prog.EvalBool(act)
		if err != nil {
			return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
		}
		if ok {
			if err := w.finishNode(ctx, node.ID, store.NodeSuccess, map[string]any{"branch": br.To}, ""); err != nil {
				return nil, err
			}
			return directHop(br.To, node.ID, extra), nil
		}
	}
	if err := w.finishNode(ctx, node.ID, store.NodeSuccess, map[string]any{"branch": data.ElseTo}, ""); err != nil {
		return nil, err
	}
	return directHop(data.ElseTo, node.ID, extra), nil
}

// handleGatewaySwitch evaluates selector once, then looks it up by
// equality among cases (spec.md §4.3).
func (w *worker) handleGatewaySwitch(ctx context.Context, node *dag.Node, extra map[string]any) ([]nextHop, error) {
	data := node.Data.(dag.GatewaySwitchData)
	act := w.activationWith(extra)
	prog, err := w.eng.exprEnv.Compile(data.Selector)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}
	val, err := prog.EvalAny(act)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}
	selector := fmt.Sprintf("%v", val)
	for _, c := range data.Cases {
		if c.Value == selector {
			if err := w.finishNode(ctx, node.ID, store.NodeSuccess, map[string]any{"case": c.To}, ""); err != nil {
				return nil, err
			}
			return directHop(c.To, node.ID, extra), nil
		}
	}
	if err := w.finishNode(ctx, node.ID, store.NodeSuccess, map[string]any{"case": data.DefaultTo}, ""); err != nil {
		return nil, err
	}
	return directHop(data.DefaultTo, node.ID, extra), nil
}

// handleJoin records from's arrival and, if the join's mode is now
// satisfied, finalizes it and routes its successors by edge (spec.md
// §4.3). Concurrent arrivals (from parallel branches or loop_foreach
// shards) are serialized by joinMu so the quorum check and the DONE
// transition happen exactly once.
func (w *worker) handleJoin(ctx context.Context, node *dag.Node, from string) ([]nextHop, error) {
	w.joinMu.Lock()
	defer w.joinMu.Unlock()

	if existing, err := w.eng.runs.GetNodeExecution(ctx, w.run.ID, node.ID); err == nil &&
		existing != nil && isTerminal(existing.Status) {
		return nil, nil
	}

	if from != "" {
		if err := w.eng.runs.RecordJoinArrival(ctx, &store.JoinArrival{
			RunID: w.run.ID, JoinNodeID: node.ID, FromNodeID: from, ArrivedAt: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}

	arrivals, err := w.eng.runs.ListJoinArrivals(ctx, w.run.ID, node.ID)
	if err != nil {
		return nil, err
	}
	distinct := map[string]bool{}
	for _, a := range arrivals {
		distinct[a.FromNodeID] = true
	}

	data := node.Data.(dag.JoinData)
	inDegree := w.idx.InDegree(node.ID)
	satisfied := joinSatisfied(data.Mode, len(distinct), inDegree)
	if !satisfied {
		if w.joinDeadlocked(ctx, node.ID) {
			return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, ErrJoinDeadlock.Error())
		}
		return nil, nil
	}
	return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, map[string]any{"arrived": len(distinct)}, "")
}

func joinSatisfied(mode dag.JoinMode, arrived, inDegree int) bool {
	if n, ok := mode.IsQuorum(); ok {
		return arrived >= n
	}
	switch mode {
	case dag.JoinAny:
		return arrived >= 1
	case dag.JoinAll:
		fallthrough
	default:
		return arrived >= inDegree
	}
}

// joinDeadlocked reports whether every predecessor of joinID has already
// reached a final status, meaning no further arrivals are possible
// (spec.md §7 JoinDeadlock).
func (w *worker) joinDeadlocked(ctx context.Context, joinID string) bool {
	for _, e := range w.idx.In(joinID) {
		ne, err := w.eng.runs.GetNodeExecution(ctx, w.run.ID, e.Source)
		if err != nil || ne == nil || !isTerminal(ne.Status) {
			return false
		}
	}
	return true
}

func isTerminal(status store.NodeStatus) bool {
	return status == store.NodeSuccess || status == store.NodeError || status == store.NodeSkipped
}

// handleLoopWhile evaluates condition; looping re-enters via the compiled
// back-edge the body emits to this node id, so only the "enter body"
// direction is a direct hop here (spec.md §9: loops are back-edges
// through loop nodes, interpreted by the dispatcher).
func (w *worker) handleLoopWhile(ctx context.Context, node *dag.Node, extra map[string]any) ([]nextHop, error) {
	data := node.Data.(dag.LoopWhileData)
	if data.MaxIterations == 0 {
		return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, nil, "")
	}
	act := w.activationWith(extra)
	prog, err := w.eng.exprEnv.Compile(data.Condition)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}
	ok, err := prog.EvalBool(act)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}
	if !ok {
		return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, nil, "")
	}

	w.loopMu.Lock()
	w.loopIterations[node.ID]++
	iter := w.loopIterations[node.ID]
	w.loopMu.Unlock()
	if iter > data.MaxIterations {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, ErrMaxIterations.Error())
	}
	return directHop(data.BodyStart, node.ID, extra), nil
}

// handleLoopForeach fans out bounded-concurrent shards over
// source_array_expr, each binding `item`/`index` only within its own
// expression evaluations (spec.md §9 open question (a): shards receive
// scoped bindings rather than racing a shared context.vars entry).
func (w *worker) handleLoopForeach(ctx context.Context, node *dag.Node, extra map[string]any) ([]nextHop, error) {
	data := node.Data.(dag.LoopForeachData)
	act := w.activationWith(extra)
	prog, err := w.eng.exprEnv.Compile(data.SourceArrayExpr)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}
	val, err := prog.EvalAny(act)
	if err != nil {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, fmt.Sprintf("%s: %v", ErrExpressionEval, err))
	}
	items, ok := val.([]any)
	if !ok {
		return w.finishAndRoute(ctx, node.ID, store.NodeError, nil, "source_array_expr did not evaluate to a list")
	}
	if len(items) == 0 {
		return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, map[string]any{"count": 0}, "")
	}

	maxConcurrency := data.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = len(items)
	}
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrency)
	for i, item := range items {
		grp.Go(func() error {
			shardExtra := map[string]any{"item": item, "index": i}
			for k, v := range extra {
				if _, exists := shardExtra[k]; !exists {
					shardExtra[k] = v
				}
			}
			w.runShard(grpCtx, data.BodyStart, node.ID, shardExtra)
			return nil
		})
	}
	_ = grp.Wait() // shard errors are recorded on their own node, not propagated here
	return w.finishAndRoute(ctx, node.ID, store.NodeSuccess, map[string]any{"count": len(items)}, "")
}

// runShard walks one loop_foreach iteration's body chain synchronously
// within its own goroutine until it reaches a join (handled through the
// normal, joinMu-serialized handleJoin) or a dead end, so concurrent
// shards never touch the shared ready queue directly.
func (w *worker) runShard(ctx context.Context, nodeID, from string, extra map[string]any) {
	for nodeID != "" {
		if ctx.Err() != nil {
			return
		}
		hops, err := w.processNode(ctx, nodeID, from, extra)
		if err != nil {
			w.log.Error("loop_foreach shard failed", "node_id", nodeID, "error", err)
			return
		}
		switch len(hops) {
		case 0:
			return
		case 1:
			from, nodeID, extra = hops[0].from, hops[0].nodeID, hops[0].extra
		default:
			for _, h := range hops {
				w.runShard(ctx, h.nodeID, h.from, h.extra)
			}
			return
		}
	}
}
