package dag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_RoundTrip(t *testing.T) {
	t.Run("Should round-trip an action node", func(t *testing.T) {
		n := Node{
			ID:   "a1",
			Type: NodeAction,
			Data: ActionData{
				Tool:          "gmail",
				Action:        "send_email",
				ConnectionID:  "conn_1",
				InputTemplate: map[string]any{"to": "{{inputs.to}}"},
				Retry:         &RetryPolicy{Retries: 2, Backoff: BackoffLinear, DelayMS: 10},
			},
		}
		b, err := json.Marshal(n)
		require.NoError(t, err)

		var got Node
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, n.Type, got.Type)
		ad, ok := got.Data.(ActionData)
		require.True(t, ok)
		assert.Equal(t, "gmail", ad.Tool)
		assert.Equal(t, "send_email", ad.Action)
		require.NotNil(t, ad.Retry)
		assert.Equal(t, 2, ad.Retry.Retries)
	})

	t.Run("Should round-trip a join node", func(t *testing.T) {
		n := Node{ID: "j1", Type: NodeJoin, Data: JoinData{Mode: "quorum:2"}}
		b, err := json.Marshal(n)
		require.NoError(t, err)

		var got Node
		require.NoError(t, json.Unmarshal(b, &got))
		jd, ok := got.Data.(JoinData)
		require.True(t, ok)
		n2, isQuorum := jd.Mode.IsQuorum()
		assert.True(t, isQuorum)
		assert.Equal(t, 2, n2)
	})

	t.Run("Should reject an unknown node type", func(t *testing.T) {
		raw := []byte(`{"id":"x","type":"teleport","data":{}}`)
		var got Node
		err := json.Unmarshal(raw, &got)
		require.Error(t, err)
	})
}

func TestJoinMode_IsQuorum(t *testing.T) {
	t.Run("Should parse quorum modes", func(t *testing.T) {
		n, ok := JoinMode("quorum:3").IsQuorum()
		assert.True(t, ok)
		assert.Equal(t, 3, n)
	})
	t.Run("Should reject non-quorum modes", func(t *testing.T) {
		_, ok := JoinAll.IsQuorum()
		assert.False(t, ok)
		_, ok = JoinAny.IsQuorum()
		assert.False(t, ok)
	})
}

func TestEdge_EffectiveWhen(t *testing.T) {
	assert.Equal(t, WhenAlways, Edge{}.EffectiveWhen())
	assert.Equal(t, WhenSuccess, Edge{When: WhenSuccess}.EffectiveWhen())
}
