package executor

import (
	"sync"

	"github.com/realtalishaw/super-enigma/engine/expr"
)

// runContext is the in-memory run context of spec.md §3: "{inputs, vars,
// artifacts, errors}". It is owned exclusively by the single worker
// dispatching this run; nothing outside engine/executor ever touches it
// concurrently, so its internal mutex only guards against a loop_foreach
// shard's goroutines writing back results.
type runContext struct {
	mu        sync.Mutex
	inputs    map[string]any
	vars      map[string]any
	artifacts map[string]any
	errors    map[string]string
	node      map[string]any // node id -> outputs, for expr's node[id].outputs
}

func newRunContext(inputs map[string]any) *runContext {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &runContext{
		inputs:    inputs,
		vars:      map[string]any{},
		artifacts: map[string]any{},
		errors:    map[string]string{},
		node:      map[string]any{},
	}
}

// setNodeOutputs records the outputs a node produced so later expressions
// can reference node[id].outputs. Declared output_vars are extracted into
// vars separately, by applyOutputVars in nodes.go.
func (rc *runContext) setNodeOutputs(nodeID string, outputs map[string]any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.node[nodeID] = outputs
}

func (rc *runContext) setVar(name string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.vars[name] = value
}

func (rc *runContext) setArtifact(nodeID string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.artifacts[nodeID] = value
}

func (rc *runContext) setError(nodeID, brief string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.errors[nodeID] = brief
}

// activation snapshots the context into an expr.Activation. It takes rc.mu
// itself, so callers must not already hold it; snapshots are shallow
// copies of the top-level maps so a
// concurrent write during evaluation cannot race the CEL evaluator.
func (rc *runContext) activation(globals map[string]any) expr.Activation {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	vars := make(map[string]any, len(rc.vars))
	for k, v := range rc.vars {
		vars[k] = v
	}
	node := make(map[string]any, len(rc.node))
	for k, v := range rc.node {
		node[k] = v
	}
	return expr.Activation{
		Inputs:  rc.inputs,
		Vars:    vars,
		Globals: globals,
		Node:    node,
	}
}
