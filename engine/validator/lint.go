package validator

import "github.com/realtalishaw/super-enigma/engine/dag"

// Lint runs spec.md §4.1's lint(stage, doc, ctx, options): rule-based
// findings with severity/hint/auto_repairable metadata. Lint never blocks
// anything on its own; it is the input to AttemptRepair and to the
// human/JSON report the CLI renders.
func Lint(doc *dag.Document, opts Options) LintReport {
	idx := dag.BuildIndex(doc)
	var report LintReport
	for _, f := range lintNonBlocking(doc, idx, opts) {
		report.add(f)
	}
	return report
}
