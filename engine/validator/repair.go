package validator

import (
	"fmt"

	"github.com/realtalishaw/super-enigma/engine/dag"
)

// AttemptRepair applies the deterministic, idempotent subset of report's
// auto-repairable findings to doc, returning a patched copy and the
// repairs actually applied, in the order found (spec.md §4.1:
// "attempt_repair(stage, doc, report) -> apply a deterministic, idempotent
// subset of repairs"). Non-repairable findings are left for the caller.
func AttemptRepair(doc *dag.Document, report LintReport) RepairResult {
	patched := cloneDocument(doc)
	var applied []LintFinding

	for _, f := range report.Errors {
		if !f.AutoRepairable {
			continue
		}
		switch f.Code {
		case ECodeTypeBridgeMissing:
			if repairTypeBridge(patched, f) {
				applied = append(applied, f)
			}
		case ECodePollNoCursor:
			if repairPollNoCursor(patched, f) {
				applied = append(applied, f)
			}
		case ECodeWebhookNoVerify:
			if repairWebhookNoVerify(patched, f) {
				applied = append(applied, f)
			}
		case ECodePlaintextSecret:
			if repairPlaintextSecret(patched, f) {
				applied = append(applied, f)
			}
		}
	}
	return RepairResult{PatchedDoc: patched, Repairs: applied}
}

// cloneDocument deep-copies the parts AttemptRepair's fixes mutate
// (node data maps, the node/edge slices); RetryPolicy/TimeoutMS pointers
// are left shared since no repair here touches them.
func cloneDocument(doc *dag.Document) *dag.Document {
	out := &dag.Document{
		Stage: doc.Stage, WorkflowID: doc.WorkflowID, Version: doc.Version, Globals: doc.Globals,
	}
	out.Nodes = make([]dag.Node, len(doc.Nodes))
	for i, n := range doc.Nodes {
		out.Nodes[i] = dag.Node{ID: n.ID, Type: n.Type, Data: cloneNodeData(n.Data)}
	}
	out.Edges = make([]dag.Edge, len(doc.Edges))
	copy(out.Edges, doc.Edges)
	return out
}

func cloneNodeData(data dag.NodeData) dag.NodeData {
	switch d := data.(type) {
	case dag.ActionData:
		cp := d
		cp.InputTemplate = cloneAnyMap(d.InputTemplate)
		cp.OutputVars = cloneStringMap(d.OutputVars)
		return cp
	case dag.TriggerData:
		cp := d
		cp.Filter = cloneAnyMap(d.Filter)
		return cp
	default:
		return data
	}
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func findNodeIndex(doc *dag.Document, id string) int {
	for i, n := range doc.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// repairTypeBridge inserts a synthetic `internal/transform` action node
// declaring the missing output_vars name, rewiring every edge that
// targeted the referencing node to target the bridge instead, with a
// single always-edge from the bridge into the original target.
func repairTypeBridge(doc *dag.Document, f LintFinding) bool {
	nodeID, name, ok := parseInputTemplatePath(f.Path)
	if !ok {
		return false
	}
	if findNodeIndex(doc, nodeID) < 0 {
		return false
	}
	bridgeID := nodeID + "__bridge_" + name
	if findNodeIndex(doc, bridgeID) >= 0 {
		return false // already repaired, idempotent no-op
	}
	doc.Nodes = append(doc.Nodes, dag.Node{
		ID: bridgeID, Type: dag.NodeAction,
		Data: dag.ActionData{
			Tool: "internal", Action: "transform",
			InputTemplate: map[string]any{},
			OutputVars:    map[string]string{name: "result"},
		},
	})
	for i, e := range doc.Edges {
		if e.Target == nodeID {
			doc.Edges[i].Target = bridgeID
		}
	}
	doc.Edges = append(doc.Edges, dag.Edge{
		ID: bridgeID + "__to__" + nodeID, Source: bridgeID, Target: nodeID, When: dag.WhenAlways,
	})
	return true
}

// parseInputTemplatePath extracts (node id, template key) from a path
// shaped `nodes[<id>].data.input_template.<key>`.
func parseInputTemplatePath(path string) (nodeID, key string, ok bool) {
	const prefix = "nodes["
	if len(path) <= len(prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	end := indexByte(rest, ']')
	if end < 0 {
		return "", "", false
	}
	nodeID = rest[:end]
	const marker = "].data.input_template."
	idx := indexOf(path, marker)
	if idx < 0 {
		return "", "", false
	}
	key = path[idx+len(marker):]
	return nodeID, key, true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func repairPollNoCursor(doc *dag.Document, f LintFinding) bool {
	nodeID, ok := parseNodeID(f.Path)
	if !ok {
		return false
	}
	i := findNodeIndex(doc, nodeID)
	if i < 0 {
		return false
	}
	data, ok := doc.Nodes[i].Data.(dag.TriggerData)
	if !ok {
		return false
	}
	if data.Filter == nil {
		data.Filter = map[string]any{}
	}
	if _, exists := data.Filter["cursor"]; exists {
		return false
	}
	data.Filter["cursor"] = ""
	doc.Nodes[i].Data = data
	return true
}

func repairWebhookNoVerify(doc *dag.Document, f LintFinding) bool {
	nodeID, ok := parseNodeID(f.Path)
	if !ok {
		return false
	}
	i := findNodeIndex(doc, nodeID)
	if i < 0 {
		return false
	}
	data, ok := doc.Nodes[i].Data.(dag.TriggerData)
	if !ok {
		return false
	}
	if data.Filter == nil {
		data.Filter = map[string]any{}
	}
	if v, exists := data.Filter["verify_webhook"].(bool); exists && v {
		return false
	}
	data.Filter["verify_webhook"] = true
	doc.Nodes[i].Data = data
	return true
}

func repairPlaintextSecret(doc *dag.Document, f LintFinding) bool {
	nodeID, key, ok := parseInputTemplatePath(f.Path)
	if !ok {
		return false
	}
	i := findNodeIndex(doc, nodeID)
	if i < 0 {
		return false
	}
	data, ok := doc.Nodes[i].Data.(dag.ActionData)
	if !ok {
		return false
	}
	data.InputTemplate[key] = fmt.Sprintf("{{ connections.%s.secret }}", data.ConnectionID)
	doc.Nodes[i].Data = data
	return true
}

// parseNodeID extracts the node id from a path shaped `nodes[<id>]...`.
func parseNodeID(path string) (string, bool) {
	const prefix = "nodes["
	if len(path) <= len(prefix) {
		return "", false
	}
	rest := path[len(prefix):]
	end := indexByte(rest, ']')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
