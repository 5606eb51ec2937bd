package validator

import (
	"context"
	"fmt"

	"github.com/realtalishaw/super-enigma/engine/catalog"
	"github.com/realtalishaw/super-enigma/engine/dag"
)

// checkCatalog enforces spec.md §4.1's executable/dag-stage rules against
// a Tool Catalog snapshot: every action's (tool, action) must exist, its
// declared required parameters must be present in input_template, and
// (when opts carries known connection scopes) the connection must cover
// the action's required scopes. Trigger toolkit/slug pairs are checked the
// same way against GetTrigger. Template-stage documents skip this
// entirely (spec.md §4.1: "catalog slugs optional").
func checkCatalog(ctx context.Context, doc *dag.Document, cat catalog.Catalog, opts Options) []ValidationError {
	if doc.Stage == dag.StageTemplate || opts.SkipCatalogChecks || cat == nil {
		return nil
	}
	var errs []ValidationError
	for _, n := range doc.Nodes {
		switch data := n.Data.(type) {
		case dag.ActionData:
			errs = append(errs, checkActionCatalog(ctx, n.ID, data, cat, opts)...)
		case dag.TriggerData:
			errs = append(errs, checkTriggerCatalog(ctx, n.ID, data, cat)...)
		}
	}
	return errs
}

func checkActionCatalog(
	ctx context.Context, nodeID string, data dag.ActionData, cat catalog.Catalog, opts Options,
) []ValidationError {
	var errs []ValidationError
	spec, err := cat.GetAction(ctx, data.Tool, data.Action)
	if err != nil {
		return []ValidationError{{
			Code: ECodeUnknownTool, Path: "nodes[" + nodeID + "].data",
			Message: fmt.Sprintf("catalog lookup for %s/%s failed: %v", data.Tool, data.Action, err),
		}}
	}
	if spec == nil {
		return []ValidationError{{
			Code: ECodeUnknownTool, Path: "nodes[" + nodeID + "].data",
			Message: fmt.Sprintf("unknown (tool, action) pair %s/%s", data.Tool, data.Action),
		}}
	}
	for _, param := range spec.RequiredParams {
		if _, ok := data.InputTemplate[param]; !ok {
			errs = append(errs, ValidationError{
				Code: ECodeParamSpecMismatch, Path: "nodes[" + nodeID + "].data.input_template",
				Message: fmt.Sprintf("required parameter %q missing for %s/%s", param, data.Tool, data.Action),
			})
		}
	}
	if opts.ConnectionScopes != nil && len(spec.RequiredScopes) > 0 {
		granted := opts.ConnectionScopes[data.ConnectionID]
		for _, need := range spec.RequiredScopes {
			if !containsStr(granted, need) {
				errs = append(errs, ValidationError{
					Code: ECodeScopeMissing, Path: "nodes[" + nodeID + "].data.connection_id",
					Message: fmt.Sprintf("connection %q lacks required scope %q for %s/%s", data.ConnectionID, need, data.Tool, data.Action),
				})
			}
		}
	}
	return errs
}

func checkTriggerCatalog(ctx context.Context, nodeID string, data dag.TriggerData, cat catalog.Catalog) []ValidationError {
	spec, err := cat.GetTrigger(ctx, data.ToolkitSlug, data.ComposioTriggerSlug)
	if err != nil || spec == nil {
		return []ValidationError{{
			Code: ECodeUnknownTrigger, Path: "nodes[" + nodeID + "].data",
			Message: fmt.Sprintf("unknown trigger %s/%s", data.ToolkitSlug, data.ComposioTriggerSlug),
		}}
	}
	return nil
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
