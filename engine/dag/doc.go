package dag

import "fmt"

// Stage names the three document shapes the Validator/Compiler understands
// (spec.md §4.1).
type Stage string

const (
	StageTemplate   Stage = "template"
	StageExecutable Stage = "executable"
	StageDAG        Stage = "dag"
)

// Globals carries workflow-wide defaults. Action nodes inherit Retry and
// TimeoutMS from here when their own fields are absent (spec.md §4.1 step 2).
type Globals struct {
	Retry      *RetryPolicy `json:"retry,omitempty"      yaml:"retry,omitempty"`
	TimeoutMS  *int         `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	RunTimeoutMS *int       `json:"run_timeout_ms,omitempty" yaml:"run_timeout_ms,omitempty"`
	Vars       map[string]any `json:"vars,omitempty"     yaml:"vars,omitempty"`
}

// Document is the immutable, versioned workflow document of spec.md §3. The
// same struct represents all three stages; Stage records which one a given
// instance claims to be, since the schema tolerance (placeholders allowed,
// slugs optional, ...) differs per stage.
type Document struct {
	Stage      Stage    `json:"-"                    yaml:"-"`
	WorkflowID string   `json:"workflow_id"          yaml:"workflow_id"`
	Version    string   `json:"version"              yaml:"version"`
	Nodes      []Node   `json:"nodes"                yaml:"nodes"`
	Edges      []Edge   `json:"edges"                yaml:"edges"`
	Globals    *Globals `json:"globals,omitempty"    yaml:"globals,omitempty"`
}

// Index is the adjacency structure computed once at load time, per the
// design note in spec.md §9: "Implementers should represent the DAG as node
// and edge arrays with an adjacency index computed at load". It is the only
// place node/edge lookups by id happen in O(1); everything else in
// engine/validator and engine/executor consults it rather than scanning
// Document.Nodes/Edges directly.
type Index struct {
	doc         *Document
	nodeByID    map[string]*Node
	outEdges    map[string][]*Edge
	inEdges     map[string][]*Edge
}

// BuildIndex computes the adjacency Index for doc. It does not validate the
// document — engine/validator owns that — beyond the bare minimum needed to
// avoid a panic (duplicate ids silently keep the first occurrence; callers
// that care about uniqueness should run the validator first).
func BuildIndex(doc *Document) *Index {
	idx := &Index{
		doc:      doc,
		nodeByID: make(map[string]*Node, len(doc.Nodes)),
		outEdges: make(map[string][]*Edge, len(doc.Nodes)),
		inEdges:  make(map[string][]*Edge, len(doc.Nodes)),
	}
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if _, exists := idx.nodeByID[n.ID]; !exists {
			idx.nodeByID[n.ID] = n
		}
	}
	for i := range doc.Edges {
		e := &doc.Edges[i]
		idx.outEdges[e.Source] = append(idx.outEdges[e.Source], e)
		idx.inEdges[e.Target] = append(idx.inEdges[e.Target], e)
	}
	return idx
}

func (idx *Index) Node(id string) (*Node, bool) {
	n, ok := idx.nodeByID[id]
	return n, ok
}

func (idx *Index) Out(id string) []*Edge { return idx.outEdges[id] }

func (idx *Index) In(id string) []*Edge { return idx.inEdges[id] }

// InDegree returns the number of distinct edges targeting id, used by join
// soundness checks (spec.md §3 invariant, §4.3 join semantics).
func (idx *Index) InDegree(id string) int { return len(idx.inEdges[id]) }

// Triggers returns every trigger node in the document.
func (idx *Index) Triggers() []*Node {
	var out []*Node
	for i := range idx.doc.Nodes {
		if idx.doc.Nodes[i].Type == NodeTrigger {
			out = append(out, &idx.doc.Nodes[i])
		}
	}
	return out
}

// Nodes returns every node in document order.
func (idx *Index) Nodes() []*Node {
	out := make([]*Node, len(idx.doc.Nodes))
	for i := range idx.doc.Nodes {
		out[i] = &idx.doc.Nodes[i]
	}
	return out
}

func (idx *Index) Document() *Document { return idx.doc }

// ReachableFromTriggers returns the set of node ids reachable by following
// edges forward from any trigger node. Used by the Validator's reachability
// invariant (spec.md §3: "every non-trigger node reachable from some trigger").
func (idx *Index) ReachableFromTriggers() map[string]bool {
	seen := make(map[string]bool)
	var stack []string
	for _, t := range idx.Triggers() {
		stack = append(stack, t.ID)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, e := range idx.Out(id) {
			if !seen[e.Target] {
				stack = append(stack, e.Target)
			}
		}
	}
	return seen
}

// sanityCheck performs structural sanity only: it rejects a document with an
// empty workflow_id. Deeper semantic rules live in engine/validator.
// BuildIndex does not call it.
func (d *Document) sanityCheck() error {
	if d.WorkflowID == "" {
		return fmt.Errorf("dag: workflow_id is required")
	}
	return nil
}
