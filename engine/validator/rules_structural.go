package validator

import (
	"fmt"

	"github.com/realtalishaw/super-enigma/engine/dag"
)

// checkStructure applies spec.md §3's graph invariants that hold at every
// stage: unique ids, edges pointing at real nodes, at least one trigger,
// reachability from some trigger, and acyclicity (ignoring the back-edges
// loop_while/loop_foreach bodies declare).
func checkStructure(doc *dag.Document, idx *dag.Index) []ValidationError {
	var errs []ValidationError

	seen := map[string]bool{}
	for _, n := range doc.Nodes {
		if seen[n.ID] {
			errs = append(errs, ValidationError{
				Code: ECodeDuplicateID, Path: "nodes[" + n.ID + "]", Stage: doc.Stage,
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
			})
		}
		seen[n.ID] = true
	}

	for _, e := range doc.Edges {
		if _, ok := idx.Node(e.Source); !ok {
			errs = append(errs, ValidationError{
				Code: ECodeDanglingEdge, Path: "edges[" + e.ID + "].source", Stage: doc.Stage,
				Message: fmt.Sprintf("edge %q source %q does not exist", e.ID, e.Source),
			})
		}
		if _, ok := idx.Node(e.Target); !ok {
			errs = append(errs, ValidationError{
				Code: ECodeDanglingEdge, Path: "edges[" + e.ID + "].target", Stage: doc.Stage,
				Message: fmt.Sprintf("edge %q target %q does not exist", e.ID, e.Target),
			})
		}
	}

	if len(idx.Triggers()) == 0 {
		errs = append(errs, ValidationError{
			Code: ECodeNoTrigger, Path: "nodes", Stage: doc.Stage,
			Message: "document has no trigger node",
		})
	}

	// Reachability and cycle checks need a sane graph to walk; skip them
	// if dangling edges already broke the index above them.
	if len(errs) == 0 {
		reachable := idx.ReachableFromTriggers()
		for _, n := range doc.Nodes {
			if n.Type == dag.NodeTrigger {
				continue
			}
			if !reachable[n.ID] {
				errs = append(errs, ValidationError{
					Code: ECodeUnreachableNode, Path: "nodes[" + n.ID + "]", Stage: doc.Stage,
					Message: fmt.Sprintf("node %q is not reachable from any trigger", n.ID),
				})
			}
		}

		if cyc := findCycle(idx); cyc != nil {
			errs = append(errs, ValidationError{
				Code: ECodeCycleInGraph, Path: "edges", Stage: doc.Stage,
				Message: "cycle detected outside of loop_while/loop_foreach back-edges",
				Meta:    map[string]any{"cycle": cyc},
			})
		}
	}

	return errs
}

// findCycle runs a DFS over the graph with edges into loop nodes removed
// (those are the legal back-edges spec.md §3 carves out), returning the
// node ids of a cycle if one exists among the remaining edges.
func findCycle(idx *dag.Index) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, e := range idx.Out(id) {
			target, ok := idx.Node(e.Target)
			if !ok {
				continue
			}
			if target.Type == dag.NodeLoopWhile || target.Type == dag.NodeLoopForeach {
				continue // legal back-edge into a loop node
			}
			switch color[e.Target] {
			case white:
				if visit(e.Target) {
					return true
				}
			case gray:
				cycle = append(append([]string{}, path...), e.Target)
				return true
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, n := range idx.Nodes() {
		if color[n.ID] == white {
			if visit(n.ID) {
				return cycle
			}
		}
	}
	return nil
}

// checkJoinSoundness verifies mode:quorum:N satisfies 1 <= N <= in_degree
// (spec.md §3 invariant).
func checkJoinSoundness(doc *dag.Document, idx *dag.Index) []ValidationError {
	var errs []ValidationError
	for _, n := range doc.Nodes {
		if n.Type != dag.NodeJoin {
			continue
		}
		data := n.Data.(dag.JoinData)
		inDegree := idx.InDegree(n.ID)
		if quorum, ok := data.Mode.IsQuorum(); ok {
			if quorum < 1 || quorum > inDegree {
				errs = append(errs, ValidationError{
					Code: ECodeJoinModeInvalid, Path: "nodes[" + n.ID + "].data.mode", Stage: doc.Stage,
					Message: fmt.Sprintf("join quorum:%d is unsound for in_degree %d", quorum, inDegree),
				})
			}
		} else if data.Mode != dag.JoinAll && data.Mode != dag.JoinAny {
			errs = append(errs, ValidationError{
				Code: ECodeJoinModeInvalid, Path: "nodes[" + n.ID + "].data.mode", Stage: doc.Stage,
				Message: fmt.Sprintf("unknown join mode %q", data.Mode),
			})
		}
	}
	return errs
}
