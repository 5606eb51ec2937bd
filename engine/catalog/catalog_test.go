package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.PutProvider(&Provider{Slug: "gmail", Name: "Gmail"})
	m.PutAction("gmail", "send_email", &ActionSpec{RequiredParams: []string{"to", "subject"}})
	m.PutTrigger("gmail", "new_email", &TriggerSpec{Slug: "new_email"})

	t.Run("Should find a stored provider", func(t *testing.T) {
		p, err := m.GetProvider(ctx, "gmail")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Gmail", p.Name)
	})

	t.Run("Should report null for a missing provider", func(t *testing.T) {
		p, err := m.GetProvider(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("Should find a stored action", func(t *testing.T) {
		a, err := m.GetAction(ctx, "gmail", "send_email")
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, []string{"to", "subject"}, a.RequiredParams)
	})
}

func TestCached_HitsBackingOnceThenCaches(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	backing.PutProvider(&Provider{Slug: "slack", Name: "Slack"})

	cached, err := NewCached(backing, 1<<20)
	require.NoError(t, err)
	defer cached.Close()

	p1, err := cached.GetProvider(ctx, "slack")
	require.NoError(t, err)
	require.NotNil(t, p1)
	cached.Wait()

	backing.PutProvider(&Provider{Slug: "slack", Name: "Renamed"})

	p2, err := cached.GetProvider(ctx, "slack")
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Equal(t, "Slack", p2.Name, "cached value should not reflect the backing update yet")
}
