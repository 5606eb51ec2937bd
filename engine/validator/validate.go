package validator

import (
	"context"

	"github.com/realtalishaw/super-enigma/engine/catalog"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
)

// Validate runs spec.md §4.1's validate(stage, doc, options): schema
// (already enforced by dag.Node's closed UnmarshalJSON dispatch before
// this is ever called), graph-integrity, catalog-existence, and
// expression-safety checks. doc.Stage selects which subset applies —
// template-stage documents skip catalog/param checks (spec.md: "schema
// lenient; catalog slugs optional").
func Validate(ctx context.Context, doc *dag.Document, cat catalog.Catalog, exprEnv *expr.Env, opts Options) (*ValidationResult, error) {
	idx := dag.BuildIndex(doc)

	var errs []ValidationError
	errs = append(errs, checkStructure(doc, idx)...)
	errs = append(errs, checkJoinSoundness(doc, idx)...)
	errs = append(errs, checkExpressions(doc, exprEnv)...)
	if doc.Stage != dag.StageTemplate {
		errs = append(errs, checkCatalog(ctx, doc, cat, opts)...)
	}
	if cronErrs := cronErrorsAsValidation(doc); len(cronErrs) > 0 {
		errs = append(errs, cronErrs...)
	}

	return &ValidationResult{OK: len(errs) == 0, Errors: errs}, nil
}

// cronErrorsAsValidation promotes lintCronInvalid's error-severity finding
// into a blocking ValidationError: a schedule trigger with an
// unparseable cron expression can never fire, which is a structural
// defect, not a quality hint.
func cronErrorsAsValidation(doc *dag.Document) []ValidationError {
	var out []ValidationError
	for _, f := range lintCronInvalid(doc) {
		out = append(out, ValidationError{Code: f.Code, Path: f.Path, Stage: doc.Stage, Message: f.Message})
	}
	return out
}
