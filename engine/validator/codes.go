// Package validator is the Validator/Compiler of spec.md §4.1: a stateless
// library that validates a workflow document at each stage (template,
// executable, dag), lints it for non-blocking quality issues, attempts a
// bounded set of deterministic auto-repairs, and lowers executable
// documents into the DAG stage.
package validator

// Code is a stable validator/linter finding code (spec.md §4.1 "rule
// catalog, codes stable").
type Code string

// Error codes. Validate reports every code here except E009, E011, E012 and
// E013, which only Lint raises, as auto-repairable findings.
const (
	ECodeUnknownTool       Code = "E001"
	ECodeParamSpecMismatch Code = "E002"
	ECodeUnknownTrigger    Code = "E003"
	ECodeScopeMissing      Code = "E004"
	ECodeCycleInGraph      Code = "E006"
	ECodeUnresolvedRef     Code = "E008"
	ECodeTypeBridgeMissing Code = "E009"
	ECodeCronInvalid       Code = "E010"
	ECodePollNoCursor      Code = "E011"
	ECodeWebhookNoVerify   Code = "E012"
	ECodePlaintextSecret   Code = "E013"

	// Extensions named by spec.md §3's invariants but not assigned a code
	// in the "selected" catalog; kept in the same E-series for a uniform
	// rule-lookup table.
	ECodeDuplicateID     Code = "E014"
	ECodeDanglingEdge    Code = "E015"
	ECodeNoTrigger       Code = "E016"
	ECodeUnreachableNode Code = "E017"
	ECodeJoinModeInvalid Code = "E018"
	ECodeIllegalJSONPath Code = "E019"
)

// Warning/hint codes. These never block validate(); only findings tagged
// AutoRepairable=true may be silently fixed by attempt_repair.
const (
	WCodeAggressiveFanout   Code = "W201"
	WCodeMissingChoiceGuard Code = "W202"
	WCodeNoIdempotency      Code = "W501"
	WCodeMissingRetryPolicy Code = "W502"
)

// Severity classifies a lint finding; errors additionally appear in a
// ValidationResult's Errors slice.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityHint    Severity = "hint"
)
