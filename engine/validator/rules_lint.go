package validator

import (
	"fmt"

	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/scheduler/cronspec"
)

// lintNonBlocking runs spec.md §4.1's named warning/hint rules plus the
// auto-repairable error findings; none of these block validate(), but the
// auto-repairable ones feed attempt_repair.
func lintNonBlocking(doc *dag.Document, idx *dag.Index, opts Options) []LintFinding {
	var out []LintFinding
	out = append(out, lintAggressiveFanout(doc, idx, opts)...)
	out = append(out, lintMissingChoiceGuard(doc)...)
	out = append(out, lintIdempotencyAndRetry(doc)...)
	out = append(out, lintCronInvalid(doc)...)
	out = append(out, lintTypeBridge(doc, idx)...)
	out = append(out, lintPollNoCursor(doc)...)
	out = append(out, lintWebhookNoVerify(doc)...)
	out = append(out, lintPlaintextSecret(doc)...)
	return out
}

// lintAggressiveFanout flags a parallel node whose out-degree exceeds
// opts.fanoutThreshold (W201): a shape that is legal but likely to
// overload the downstream invoker or the catalog's rate limits.
func lintAggressiveFanout(doc *dag.Document, idx *dag.Index, opts Options) []LintFinding {
	var out []LintFinding
	threshold := opts.fanoutThreshold()
	for _, n := range doc.Nodes {
		if n.Type != dag.NodeParallel {
			continue
		}
		if d := len(idx.Out(n.ID)); d > threshold {
			out = append(out, LintFinding{
				Code: WCodeAggressiveFanout, Severity: SeverityWarning, Path: "nodes[" + n.ID + "]",
				Message: fmt.Sprintf("parallel node fans out to %d branches (threshold %d)", d, threshold),
				Hint:    "consider batching or a loop_foreach with a bounded max_concurrency instead",
			})
		}
	}
	return out
}

// lintMissingChoiceGuard flags a gateway_if with no else_to or a
// gateway_switch with no default_to (W202): a branch set that doesn't
// cover the "none of the above" case routes nowhere at runtime.
func lintMissingChoiceGuard(doc *dag.Document) []LintFinding {
	var out []LintFinding
	for _, n := range doc.Nodes {
		switch data := n.Data.(type) {
		case dag.GatewayIfData:
			if data.ElseTo == "" {
				out = append(out, LintFinding{
					Code: WCodeMissingChoiceGuard, Severity: SeverityWarning, Path: "nodes[" + n.ID + "].data.else_to",
					Message: "gateway_if has no else_to; a run where no branch matches has nowhere to go",
				})
			}
		case dag.GatewaySwitchData:
			if data.DefaultTo == "" {
				out = append(out, LintFinding{
					Code: WCodeMissingChoiceGuard, Severity: SeverityWarning, Path: "nodes[" + n.ID + "].data.default_to",
					Message: "gateway_switch has no default_to; an unmatched selector has nowhere to go",
				})
			}
		}
	}
	return out
}

// lintIdempotencyAndRetry flags actions with no output_vars bound to an
// idempotency-relevant field (W501, heuristic: no output_vars at all) and
// actions with no retry policy and no inherited globals.retry (W502).
func lintIdempotencyAndRetry(doc *dag.Document) []LintFinding {
	var out []LintFinding
	for _, n := range doc.Nodes {
		data, ok := n.Data.(dag.ActionData)
		if !ok {
			continue
		}
		if len(data.OutputVars) == 0 {
			out = append(out, LintFinding{
				Code: WCodeNoIdempotency, Severity: SeverityWarning, Path: "nodes[" + n.ID + "].data.output_vars",
				Message: "action declares no output_vars; downstream nodes cannot reference its result",
			})
		}
		if data.Retry == nil && (doc.Globals == nil || doc.Globals.Retry == nil) {
			out = append(out, LintFinding{
				Code: WCodeMissingRetryPolicy, Severity: SeverityWarning, Path: "nodes[" + n.ID + "].data.retry",
				Message: "action has no retry policy and none is inherited from globals",
				Hint:    "set globals.retry or the node's own retry to avoid a single transient failure ending the run",
			})
		}
	}
	return out
}

// lintCronInvalid validates schedule-based triggers' cron_expr/timezone
// (E010, surfaced here as an error-severity lint finding so attempt_repair
// cannot silently paper over it; only the named auto-repairable codes are
// ever silently fixed).
func lintCronInvalid(doc *dag.Document) []LintFinding {
	var out []LintFinding
	for _, n := range doc.Nodes {
		data, ok := n.Data.(dag.TriggerData)
		if !ok || data.Kind != dag.TriggerScheduleBased {
			continue
		}
		if _, err := cronspec.Parse(data.CronExpr, data.Timezone); err != nil {
			out = append(out, LintFinding{
				Code: ECodeCronInvalid, Severity: SeverityError, Path: "nodes[" + n.ID + "].data.cron_expr",
				Message: err.Error(),
			})
		}
	}
	return out
}

// lintTypeBridge is a narrow heuristic for E009 TypeBridgeMissing: an
// action edge whose source output_vars name is referenced in the
// target's input_template through a path shape gjson would reject
// outright (spec.md names this an auto-repair, "insert transform node";
// detecting every real type mismatch needs runtime shapes this stage
// doesn't have, so this only catches the syntactically detectable case:
// a downstream reference to `vars.X` where no upstream node declares
// output_vars named X).
func lintTypeBridge(doc *dag.Document, _ *dag.Index) []LintFinding {
	declared := map[string]bool{}
	for _, n := range doc.Nodes {
		if data, ok := n.Data.(dag.ActionData); ok {
			for name := range data.OutputVars {
				declared[name] = true
			}
		}
	}
	var out []LintFinding
	for _, n := range doc.Nodes {
		data, ok := n.Data.(dag.ActionData)
		if !ok {
			continue
		}
		for key, v := range data.InputTemplate {
			ref, isStr := v.(string)
			if !isStr {
				continue
			}
			name, isVarRef := parseVarsRef(ref)
			if isVarRef && !declared[name] {
				out = append(out, LintFinding{
					Code: ECodeTypeBridgeMissing, Severity: SeverityError, AutoRepairable: true,
					Path:    fmt.Sprintf("nodes[%s].data.input_template.%s", n.ID, key),
					Message: fmt.Sprintf("references vars.%s, which no upstream action declares in output_vars", name),
					Hint:    "insert a transform action that declares output_vars." + name,
				})
			}
		}
	}
	return out
}

// parseVarsRef reports whether ref is exactly `{{ vars.<name> }}` and, if
// so, returns <name>.
func parseVarsRef(ref string) (string, bool) {
	const prefix, suffix = "{{ vars.", " }}"
	if len(ref) <= len(prefix)+len(suffix) {
		return "", false
	}
	if ref[:len(prefix)] != prefix || ref[len(ref)-len(suffix):] != suffix {
		return "", false
	}
	return ref[len(prefix) : len(ref)-len(suffix)], true
}

// lintPollNoCursor flags an event_based trigger whose filter has no
// cursor field (E011 PollNoCursor): a polling-style trigger without a
// cursor re-delivers the same events every poll.
func lintPollNoCursor(doc *dag.Document) []LintFinding {
	var out []LintFinding
	for _, n := range doc.Nodes {
		data, ok := n.Data.(dag.TriggerData)
		if !ok || data.Kind != dag.TriggerEventBased {
			continue
		}
		if data.Filter != nil {
			if _, ok := data.Filter["cursor"]; ok {
				continue
			}
		}
		out = append(out, LintFinding{
			Code: ECodePollNoCursor, Severity: SeverityError, AutoRepairable: true,
			Path: "nodes[" + n.ID + "].data.filter.cursor", Message: "event trigger has no cursor field",
			Hint: "add a cursor so re-polls don't redeliver the same events",
		})
	}
	return out
}

// lintWebhookNoVerify flags an event_based trigger whose filter doesn't
// request webhook signature verification (E012 WebhookNoVerify).
func lintWebhookNoVerify(doc *dag.Document) []LintFinding {
	var out []LintFinding
	for _, n := range doc.Nodes {
		data, ok := n.Data.(dag.TriggerData)
		if !ok || data.Kind != dag.TriggerEventBased {
			continue
		}
		if data.Filter != nil {
			if v, ok := data.Filter["verify_webhook"].(bool); ok && v {
				continue
			}
		}
		out = append(out, LintFinding{
			Code: ECodeWebhookNoVerify, Severity: SeverityError, AutoRepairable: true,
			Path: "nodes[" + n.ID + "].data.filter.verify_webhook", Message: "event trigger does not request webhook verification",
		})
	}
	return out
}

var plaintextSecretMarkers = []string{"sk_", "sk-", "Bearer ", "AKIA", "xox"}

// lintPlaintextSecret flags an input_template literal that looks like a
// bearer token or API key rather than a connection/expression reference
// (E013 PlaintextSecret).
func lintPlaintextSecret(doc *dag.Document) []LintFinding {
	var out []LintFinding
	for _, n := range doc.Nodes {
		data, ok := n.Data.(dag.ActionData)
		if !ok {
			continue
		}
		for key, v := range data.InputTemplate {
			s, isStr := v.(string)
			if !isStr {
				continue
			}
			for _, marker := range plaintextSecretMarkers {
				if len(s) >= len(marker) && s[:len(marker)] == marker {
					out = append(out, LintFinding{
						Code: ECodePlaintextSecret, Severity: SeverityError, AutoRepairable: true,
						Path:    fmt.Sprintf("nodes[%s].data.input_template.%s", n.ID, key),
						Message: "input_template contains a literal value that looks like a secret",
						Hint:    "reference the connection instead of embedding a literal credential",
					})
					break
				}
			}
		}
	}
	return out
}
