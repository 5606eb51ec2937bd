package validator

import (
	"context"
	"fmt"

	"dario.cat/mergo"

	"github.com/realtalishaw/super-enigma/engine/catalog"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
)

// Compile lowers an executable-stage document into the dag stage (spec.md
// §4.1 "Compilation (E->D)"). Steps 3-6 of the spec's lowering list
// (IF/ELSE -> gateway_if, SWITCH -> gateway_switch, parallel groups,
// join insertion, loop lowering) are no-ops here: this module's Document
// already represents every stage with the same primitive node set
// (gateway_if, gateway_switch, parallel, join, loop_while, loop_foreach)
// rather than a separate higher-level authoring vocabulary, so an
// executable-stage document is already shaped like its compiled DAG
// (documented design decision, DESIGN.md). What Compile still must do:
// step 2, materializing each action's retry/timeout_ms from globals when
// the node doesn't set its own.
func Compile(doc *dag.Document) (*dag.Document, error) {
	out := cloneDocument(doc)
	out.Stage = dag.StageDAG

	if out.Globals != nil {
		for i, n := range out.Nodes {
			data, ok := n.Data.(dag.ActionData)
			if !ok {
				continue
			}
			if err := inheritGlobals(&data, out.Globals); err != nil {
				return nil, fmt.Errorf("validator: compile node %q: %w", n.ID, err)
			}
			out.Nodes[i].Data = data
		}
	}
	return out, nil
}

// inheritGlobals merges globals.retry/timeout_ms onto data only when the
// node's own field is absent, using mergo's WithOverride=false default so
// an already-set node field always wins.
func inheritGlobals(data *dag.ActionData, globals *dag.Globals) error {
	if data.Retry == nil && globals.Retry != nil {
		cp := *globals.Retry
		data.Retry = &cp
	} else if data.Retry != nil && globals.Retry != nil {
		if err := mergo.Merge(data.Retry, *globals.Retry); err != nil {
			return err
		}
	}
	if data.TimeoutMS == nil && globals.TimeoutMS != nil {
		v := *globals.TimeoutMS
		data.TimeoutMS = &v
	}
	return nil
}

// ValidateAndCompile runs spec.md §4.1's full pipeline: validate the
// executable document, lint it and apply auto-repairs, re-validate,
// lower to the dag stage, then validate and lint the result.
func ValidateAndCompile(
	ctx context.Context, executable *dag.Document, cat catalog.Catalog, exprEnv *expr.Env, opts Options,
) CompileResult {
	res, err := Validate(ctx, executable, cat, exprEnv, opts)
	if err != nil {
		return CompileResult{OK: false, Errors: []ValidationError{{Message: err.Error()}}}
	}
	if !res.OK {
		return CompileResult{OK: false, Errors: res.Errors}
	}

	report := Lint(executable, opts)
	working := executable
	if len(report.Errors) > 0 {
		repair := AttemptRepair(executable, report)
		working = repair.PatchedDoc
		res, err = Validate(ctx, working, cat, exprEnv, opts)
		if err != nil {
			return CompileResult{OK: false, Errors: []ValidationError{{Message: err.Error()}}}
		}
		if !res.OK {
			// spec.md §4.1: "A final ERROR after repair attempts is fatal."
			return CompileResult{OK: false, Report: report, Errors: res.Errors}
		}
	}

	lowered, err := Compile(working)
	if err != nil {
		return CompileResult{OK: false, Report: report, Errors: []ValidationError{{Message: err.Error()}}}
	}

	dagRes, err := Validate(ctx, lowered, cat, exprEnv, opts)
	if err != nil {
		return CompileResult{OK: false, Report: report, Errors: []ValidationError{{Message: err.Error()}}}
	}
	if !dagRes.OK {
		return CompileResult{OK: false, Report: report, Errors: dagRes.Errors}
	}

	dagReport := Lint(lowered, opts)
	finalReport := mergeReports(report, dagReport)
	return CompileResult{OK: true, DAG: lowered, Report: finalReport}
}

func mergeReports(a, b LintReport) LintReport {
	return LintReport{
		Errors:   append(append([]LintFinding{}, a.Errors...), b.Errors...),
		Warnings: append(append([]LintFinding{}, a.Warnings...), b.Warnings...),
		Hints:    append(append([]LintFinding{}, a.Hints...), b.Hints...),
	}
}
