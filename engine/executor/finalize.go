package executor

import (
	"context"
	"time"

	"github.com/realtalishaw/super-enigma/engine/store"
)

// finalize runs once, when the ready queue has drained (spec.md §4.3:
// "made once, atomically"). Any node the dispatch loop never reached
// (scenario 6: a join that never fired leaves its downstream PENDING
// forever) is recorded SKIPPED, then the run's terminal status is
// FAILED iff any node reached final ERROR, else SUCCEEDED.
func (w *worker) finalize(ctx context.Context) {
	failed := false
	for _, n := range w.idx.Nodes() {
		ne, err := w.eng.runs.GetNodeExecution(ctx, w.run.ID, n.ID)
		if err != nil && err != store.ErrNotFound {
			w.log.Error("finalize: could not read node execution", "node_id", n.ID, "error", err)
			continue
		}
		if ne == nil {
			if err := w.finishNode(ctx, n.ID, store.NodeSkipped, nil, ""); err != nil {
				w.log.Error("finalize: could not mark unreached node skipped", "node_id", n.ID, "error", err)
			}
			continue
		}
		if ne.Status == store.NodeError {
			failed = true
		}
	}

	status := store.RunSucceeded
	runErr := ""
	if failed {
		status = store.RunFailed
		runErr = "one or more required nodes failed"
	}
	now := time.Now().UTC()
	if err := w.eng.runs.SetRunStatus(ctx, w.run.ID, status, &now, runErr); err != nil {
		w.log.Error("finalize: could not set run status", "run_id", w.run.ID.String(), "error", err)
	}
}
