package validator_test

import (
	"context"
	"testing"

	"github.com/realtalishaw/super-enigma/engine/catalog"
	"github.com/realtalishaw/super-enigma/engine/dag"
	"github.com/realtalishaw/super-enigma/engine/expr"
	"github.com/realtalishaw/super-enigma/engine/validator"
)

type fakeCatalog struct {
	actions  map[string]*catalog.ActionSpec
	triggers map[string]*catalog.TriggerSpec
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{actions: map[string]*catalog.ActionSpec{}, triggers: map[string]*catalog.TriggerSpec{}}
}

func (c *fakeCatalog) GetProvider(_ context.Context, _ string) (*catalog.Provider, error) { return nil, nil }

func (c *fakeCatalog) GetAction(_ context.Context, provider, action string) (*catalog.ActionSpec, error) {
	return c.actions[provider+":"+action], nil
}

func (c *fakeCatalog) GetTrigger(_ context.Context, provider, slug string) (*catalog.TriggerSpec, error) {
	return c.triggers[provider+":"+slug], nil
}

func newExprEnv(t *testing.T) *expr.Env {
	t.Helper()
	env, err := expr.NewEnv()
	if err != nil {
		t.Fatalf("expr.NewEnv: %v", err)
	}
	return env
}

func linearDoc() *dag.Document {
	return &dag.Document{
		Stage:      dag.StageDAG,
		WorkflowID: "wf1",
		Version:    "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "a1", Type: dag.NodeAction, Data: dag.ActionData{
				Tool: "mail", Action: "send", InputTemplate: map[string]any{"to": "x"},
				OutputVars: map[string]string{"sent_id": "id"},
				Retry:      &dag.RetryPolicy{Retries: 1, Backoff: dag.BackoffLinear, DelayMS: 10},
			}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
}

func TestValidate_TrivialLinearOK(t *testing.T) {
	doc := linearDoc()
	res, err := validator.Validate(context.Background(), doc, nil, newExprEnv(t), validator.Options{SkipCatalogChecks: true})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected OK, got errors: %+v", res.Errors)
	}
}

func TestValidate_DanglingEdgeIsError(t *testing.T) {
	doc := linearDoc()
	doc.Edges = append(doc.Edges, dag.Edge{ID: "e2", Source: "a1", Target: "ghost"})
	res, _ := validator.Validate(context.Background(), doc, nil, newExprEnv(t), validator.Options{SkipCatalogChecks: true})
	if res.OK {
		t.Fatal("expected a dangling edge to fail validation")
	}
	found := false
	for _, e := range res.Errors {
		if e.Code == validator.ECodeDanglingEdge {
			found = true
		}
	}
	if !found {
		t.Errorf("expected E015 dangling edge among errors, got %+v", res.Errors)
	}
}

func TestValidate_UnreachableNodeIsError(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, dag.Node{ID: "orphan", Type: dag.NodeAction, Data: dag.ActionData{
		Tool: "x", Action: "y", InputTemplate: map[string]any{},
	}})
	res, _ := validator.Validate(context.Background(), doc, nil, newExprEnv(t), validator.Options{SkipCatalogChecks: true})
	if res.OK {
		t.Fatal("expected an unreachable node to fail validation")
	}
}

func TestValidate_CycleOutsideLoopIsError(t *testing.T) {
	doc := linearDoc()
	doc.Nodes = append(doc.Nodes, dag.Node{ID: "a2", Type: dag.NodeAction, Data: dag.ActionData{
		Tool: "x", Action: "y", InputTemplate: map[string]any{},
	}})
	doc.Edges = append(doc.Edges,
		dag.Edge{ID: "e2", Source: "a1", Target: "a2"},
		dag.Edge{ID: "e3", Source: "a2", Target: "a1"}, // cycle not through a loop node
	)
	res, _ := validator.Validate(context.Background(), doc, nil, newExprEnv(t), validator.Options{SkipCatalogChecks: true})
	if res.OK {
		t.Fatal("expected a non-loop cycle to fail validation")
	}
	found := false
	for _, e := range res.Errors {
		if e.Code == validator.ECodeCycleInGraph {
			found = true
		}
	}
	if !found {
		t.Errorf("expected E006 cycle among errors, got %+v", res.Errors)
	}
}

func TestValidate_LoopBackEdgeIsNotACycle(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageDAG, WorkflowID: "wf-loop", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "lw", Type: dag.NodeLoopWhile, Data: dag.LoopWhileData{Condition: "vars.x < 3", BodyStart: "body", MaxIterations: 5}},
			{ID: "body", Type: dag.NodeAction, Data: dag.ActionData{Tool: "x", Action: "y", InputTemplate: map[string]any{}}},
		},
		Edges: []dag.Edge{
			{ID: "e1", Source: "t1", Target: "lw"},
			{ID: "e2", Source: "body", Target: "lw"}, // legal back-edge
		},
	}
	res, _ := validator.Validate(context.Background(), doc, nil, newExprEnv(t), validator.Options{SkipCatalogChecks: true})
	if !res.OK {
		t.Fatalf("loop back-edge should not be flagged as a cycle: %+v", res.Errors)
	}
}

func TestValidate_JoinQuorumUnsoundIsError(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageDAG, WorkflowID: "wf-join", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "j1", Type: dag.NodeJoin, Data: dag.JoinData{Mode: dag.JoinMode("quorum:5")}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "j1"}},
	}
	res, _ := validator.Validate(context.Background(), doc, nil, newExprEnv(t), validator.Options{SkipCatalogChecks: true})
	if res.OK {
		t.Fatal("expected quorum:5 with in_degree 1 to fail validation")
	}
}

func TestValidate_CatalogUnknownAction(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageExecutable, WorkflowID: "wf1", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "a1", Type: dag.NodeAction, Data: dag.ActionData{Tool: "mail", Action: "send", InputTemplate: map[string]any{}}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
	cat := newFakeCatalog() // "mail/send" deliberately not registered
	res, _ := validator.Validate(context.Background(), doc, cat, newExprEnv(t), validator.Options{})
	if res.OK {
		t.Fatal("expected unknown action to fail validation")
	}
	found := false
	for _, e := range res.Errors {
		if e.Code == validator.ECodeUnknownTool {
			found = true
		}
	}
	if !found {
		t.Errorf("expected E001 unknown tool among errors, got %+v", res.Errors)
	}
}

func TestValidate_CatalogRequiredParamMissing(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageExecutable, WorkflowID: "wf1", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "a1", Type: dag.NodeAction, Data: dag.ActionData{Tool: "mail", Action: "send", InputTemplate: map[string]any{}}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
	cat := newFakeCatalog()
	cat.actions["mail:send"] = &catalog.ActionSpec{RequiredParams: []string{"to"}}
	res, _ := validator.Validate(context.Background(), doc, cat, newExprEnv(t), validator.Options{})
	if res.OK {
		t.Fatal("expected missing required param to fail validation")
	}
	found := false
	for _, e := range res.Errors {
		if e.Code == validator.ECodeParamSpecMismatch {
			found = true
		}
	}
	if !found {
		t.Errorf("expected E002 param spec mismatch among errors, got %+v", res.Errors)
	}
}

func TestLint_FindsWarnings(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageDAG, WorkflowID: "wf1", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "a1", Type: dag.NodeAction, Data: dag.ActionData{Tool: "x", Action: "y", InputTemplate: map[string]any{}}},
			{ID: "gi", Type: dag.NodeGatewayIf, Data: dag.GatewayIfData{Branches: []dag.IfBranch{{Expr: "true", To: "a1"}}}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
	report := validator.Lint(doc, validator.Options{})
	var codes []validator.Code
	for _, f := range report.Warnings {
		codes = append(codes, f.Code)
	}
	hasW501, hasW502, hasW202 := false, false, false
	for _, c := range codes {
		switch c {
		case validator.WCodeNoIdempotency:
			hasW501 = true
		case validator.WCodeMissingRetryPolicy:
			hasW502 = true
		case validator.WCodeMissingChoiceGuard:
			hasW202 = true
		}
	}
	if !hasW501 {
		t.Error("expected W501 NoIdempotency (action with no output_vars)")
	}
	if !hasW502 {
		t.Error("expected W502 MissingRetryPolicy")
	}
	if !hasW202 {
		t.Error("expected W202 MissingChoiceGuard (gateway_if with no else_to)")
	}
}

func TestLint_AggressiveFanout(t *testing.T) {
	doc := &dag.Document{Stage: dag.StageDAG, WorkflowID: "wf1", Version: "1"}
	doc.Nodes = append(doc.Nodes, dag.Node{ID: "p1", Type: dag.NodeParallel, Data: dag.ParallelData{}})
	for i := 0; i < 10; i++ {
		id := "b" + string(rune('a'+i))
		doc.Nodes = append(doc.Nodes, dag.Node{ID: id, Type: dag.NodeAction, Data: dag.ActionData{
			Tool: "x", Action: "y", InputTemplate: map[string]any{},
		}})
		doc.Edges = append(doc.Edges, dag.Edge{ID: "e_" + id, Source: "p1", Target: id})
	}
	report := validator.Lint(doc, validator.Options{FanoutThreshold: 5})
	found := false
	for _, f := range report.Warnings {
		if f.Code == validator.WCodeAggressiveFanout {
			found = true
		}
	}
	if !found {
		t.Error("expected W201 AggressiveFanout for a 10-way fanout over a threshold of 5")
	}
}

func TestAttemptRepair_PollNoCursorAndWebhookVerify(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageDAG, WorkflowID: "wf1", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased, ToolkitSlug: "gmail", ComposioTriggerSlug: "new_email"}},
		},
	}
	report := validator.Lint(doc, validator.Options{})
	result := validator.AttemptRepair(doc, report)
	if len(result.Repairs) != 2 {
		t.Fatalf("expected 2 repairs (cursor + webhook verify), got %d: %+v", len(result.Repairs), result.Repairs)
	}
	trig := result.PatchedDoc.Nodes[0].Data.(dag.TriggerData)
	if _, ok := trig.Filter["cursor"]; !ok {
		t.Error("expected cursor field to be added")
	}
	if v, _ := trig.Filter["verify_webhook"].(bool); !v {
		t.Error("expected verify_webhook to be set true")
	}
	// original doc must be untouched (repair works on a clone)
	if doc.Nodes[0].Data.(dag.TriggerData).Filter != nil {
		t.Error("original document must not be mutated by AttemptRepair")
	}
}

func TestAttemptRepair_PlaintextSecret(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageDAG, WorkflowID: "wf1", Version: "1",
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "a1", Type: dag.NodeAction, Data: dag.ActionData{
				Tool: "x", Action: "y", ConnectionID: "conn1",
				InputTemplate: map[string]any{"token": "sk_live_abcdef"},
			}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
	report := validator.Lint(doc, validator.Options{})
	result := validator.AttemptRepair(doc, report)
	found := false
	for _, r := range result.Repairs {
		if r.Code == validator.ECodePlaintextSecret {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a plaintext secret repair, got %+v", result.Repairs)
	}
	patched := result.PatchedDoc.Nodes[1].Data.(dag.ActionData)
	if patched.InputTemplate["token"] == "sk_live_abcdef" {
		t.Error("expected the literal secret to be replaced with a connection reference")
	}
}

func TestValidateAndCompile_LowersExecutableToDAG(t *testing.T) {
	doc := &dag.Document{
		Stage: dag.StageExecutable, WorkflowID: "wf1", Version: "1",
		Globals: &dag.Globals{Retry: &dag.RetryPolicy{Retries: 3, Backoff: dag.BackoffExponential, DelayMS: 100}},
		Nodes: []dag.Node{
			{ID: "t1", Type: dag.NodeTrigger, Data: dag.TriggerData{Kind: dag.TriggerEventBased}},
			{ID: "a1", Type: dag.NodeAction, Data: dag.ActionData{
				Tool: "mail", Action: "send", InputTemplate: map[string]any{"to": "x"},
				OutputVars: map[string]string{"id": "id"},
			}},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
	cat := newFakeCatalog()
	cat.actions["mail:send"] = &catalog.ActionSpec{}
	cat.triggers[":"] = &catalog.TriggerSpec{} // t1 names no toolkit/trigger slug

	result := validator.ValidateAndCompile(context.Background(), doc, cat, newExprEnv(t), validator.Options{})
	if !result.OK {
		t.Fatalf("expected compile success, got errors: %+v", result.Errors)
	}
	if result.DAG.Stage != dag.StageDAG {
		t.Errorf("expected lowered stage to be dag, got %s", result.DAG.Stage)
	}
	a1 := result.DAG.Nodes[1].Data.(dag.ActionData)
	if a1.Retry == nil || a1.Retry.Retries != 3 {
		t.Errorf("expected action to inherit globals.retry, got %+v", a1.Retry)
	}
}
