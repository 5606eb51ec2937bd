package validator

import "github.com/realtalishaw/super-enigma/engine/dag"

// ValidationError is one blocking finding (spec.md §4.1: "Fails with at
// least one ValidationError").
type ValidationError struct {
	Code    Code
	Path    string
	Stage   dag.Stage
	Message string
	Meta    map[string]any
}

func (e ValidationError) Error() string { return string(e.Code) + " " + e.Path + ": " + e.Message }

// ValidationResult is validate()'s return shape.
type ValidationResult struct {
	OK     bool
	Errors []ValidationError
}

// LintFinding is one rule-based finding from lint() or attempt_repair()'s
// applied-repairs list; the same shape serves both (spec.md §4.1).
type LintFinding struct {
	Code           Code
	Severity       Severity
	Path           string
	Message        string
	Hint           string
	AutoRepairable bool
}

// LintReport groups findings by severity (spec.md §4.1).
type LintReport struct {
	Errors   []LintFinding
	Warnings []LintFinding
	Hints    []LintFinding
}

func (r *LintReport) add(f LintFinding) {
	switch f.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, f)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, f)
	default:
		r.Hints = append(r.Hints, f)
	}
}

// RepairResult is attempt_repair()'s return shape: the patched document
// plus the repairs actually applied, in order.
type RepairResult struct {
	PatchedDoc *dag.Document
	Repairs    []LintFinding
}

// CompileResult is validate_and_compile()'s return shape (spec.md §4.1:
// "validate(executable) -> lint+repair -> lower -> validate(dag) -> lint(dag)").
type CompileResult struct {
	OK     bool
	DAG    *dag.Document
	Report LintReport
	Errors []ValidationError
}

// Options tunes thresholds the rule catalog otherwise hard-codes.
type Options struct {
	// FanoutThreshold is the parallel out-degree above which W201
	// AggressiveFanout fires. Zero uses DefaultFanoutThreshold.
	FanoutThreshold int
	// SkipCatalogChecks disables E001/E003/E002/E004, for callers
	// validating a document against no catalog (e.g. CLI `validate`
	// invoked offline against a template-stage document).
	SkipCatalogChecks bool
	// ConnectionScopes maps a connection_id to the scopes it was granted.
	// Connection/OAuth management is an external collaborator (spec.md
	// §1 non-goal), so E004 ScopeMissing only fires when a caller
	// supplies this lookup explicitly; nil skips the check entirely.
	ConnectionScopes map[string][]string
}

// DefaultFanoutThreshold is spec.md's implied "a handful" for W201; no
// exact number is named, so this is a documented design choice (DESIGN.md).
const DefaultFanoutThreshold = 8

func (o Options) fanoutThreshold() int {
	if o.FanoutThreshold > 0 {
		return o.FanoutThreshold
	}
	return DefaultFanoutThreshold
}
