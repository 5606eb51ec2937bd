package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() *Document {
	return &Document{
		Stage:      StageDAG,
		WorkflowID: "wf_1",
		Version:    "1",
		Nodes: []Node{
			{ID: "t1", Type: NodeTrigger, Data: TriggerData{Kind: TriggerEventBased}},
			{ID: "a1", Type: NodeAction, Data: ActionData{Tool: "gmail", Action: "send"}},
			{ID: "a2", Type: NodeAction, Data: ActionData{Tool: "slack", Action: "post"}},
			{ID: "orphan", Type: NodeAction, Data: ActionData{Tool: "noop", Action: "noop"}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "t1", Target: "a1", When: WhenAlways},
			{ID: "e2", Source: "a1", Target: "a2", When: WhenSuccess},
		},
	}
}

func TestBuildIndex(t *testing.T) {
	idx := BuildIndex(sampleDoc())

	t.Run("Should look up nodes by id", func(t *testing.T) {
		n, ok := idx.Node("a1")
		require.True(t, ok)
		assert.Equal(t, NodeAction, n.Type)

		_, ok = idx.Node("missing")
		assert.False(t, ok)
	})

	t.Run("Should compute out and in edges", func(t *testing.T) {
		assert.Len(t, idx.Out("t1"), 1)
		assert.Len(t, idx.In("a2"), 1)
		assert.Empty(t, idx.Out("a2"))
		assert.Equal(t, 1, idx.InDegree("a1"))
		assert.Equal(t, 0, idx.InDegree("t1"))
	})

	t.Run("Should list triggers", func(t *testing.T) {
		triggers := idx.Triggers()
		require.Len(t, triggers, 1)
		assert.Equal(t, "t1", triggers[0].ID)
	})

	t.Run("Should list all nodes in document order", func(t *testing.T) {
		assert.Len(t, idx.Nodes(), 4)
	})
}

func TestIndex_ReachableFromTriggers(t *testing.T) {
	idx := BuildIndex(sampleDoc())
	reachable := idx.ReachableFromTriggers()

	t.Run("Should mark triggers and their descendants reachable", func(t *testing.T) {
		assert.True(t, reachable["t1"])
		assert.True(t, reachable["a1"])
		assert.True(t, reachable["a2"])
	})

	t.Run("Should not mark disconnected nodes reachable", func(t *testing.T) {
		assert.False(t, reachable["orphan"])
	})
}
