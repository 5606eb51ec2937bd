package validator

import (
	"fmt"

	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
)

// checkExpressions compiles every expression embedded in the document
// (gateway_if branch exprs, gateway_switch selector, loop_while condition,
// loop_foreach source_array_expr, edge conditions) against exprEnv, and
// checks every action's output_vars path is a legal JSON path (spec.md
// §3/§4.1: "expressions parse... E008 UnresolvedRef", "output_vars
// pointing to legal JSON paths").
func checkExpressions(doc *dag.Document, exprEnv *expr.Env) []ValidationError {
	var errs []ValidationError
	compile := func(path, exprStr string) {
		if exprStr == "" {
			return
		}
		if _, err := exprEnv.Compile(exprStr); err != nil {
			errs = append(errs, ValidationError{
				Code: ECodeUnresolvedRef, Path: path, Stage: doc.Stage,
				Message: fmt.Sprintf("expression %q failed to parse: %v", exprStr, err),
			})
		}
	}

	for _, n := range doc.Nodes {
		switch data := n.Data.(type) {
		case dag.GatewayIfData:
			for i, br := range data.Branches {
				compile(fmt.Sprintf("nodes[%s].data.branches[%d].expr", n.ID, i), br.Expr)
			}
		case dag.GatewaySwitchData:
			compile(fmt.Sprintf("nodes[%s].data.selector", n.ID), data.Selector)
		case dag.LoopWhileData:
			compile(fmt.Sprintf("nodes[%s].data.condition", n.ID), data.Condition)
		case dag.LoopForeachData:
			compile(fmt.Sprintf("nodes[%s].data.source_array_expr", n.ID), data.SourceArrayExpr)
		case dag.ActionData:
			for name, path := range data.OutputVars {
				if !expr.PathIsLegal(path) {
					errs = append(errs, ValidationError{
						Code: ECodeIllegalJSONPath, Path: fmt.Sprintf("nodes[%s].data.output_vars.%s", n.ID, name),
						Stage: doc.Stage, Message: fmt.Sprintf("output_vars path %q is not a legal JSON path", path),
					})
				}
			}
		}
	}
	for _, e := range doc.Edges {
		compile(fmt.Sprintf("edges[%s].condition", e.ID), e.Condition)
	}
	return errs
}
