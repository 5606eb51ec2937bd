package idemcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtalishaw/super-enigma/engine/executor/idemcache"
)

func TestCache_RoundTrip(t *testing.T) {
	t.Run("Should return a miss for an unknown key", func(t *testing.T) {
		c, err := idemcache.New(1<<20, idemcache.MinTTL)
		require.NoError(t, err)
		defer c.Close()
		_, ok := c.Get("missing")
		assert.False(t, ok)
	})

	t.Run("Should return the cached value after Set and Wait", func(t *testing.T) {
		c, err := idemcache.New(1<<20, idemcache.MinTTL)
		require.NoError(t, err)
		defer c.Close()
		c.Set("digest-1", map[string]any{"status": "ok"})
		c.Wait()
		v, ok := c.Get("digest-1")
		require.True(t, ok)
		assert.Equal(t, "ok", v.(map[string]any)["status"])
	})
}

func TestNew_AcceptsTTLBelowMinimum(t *testing.T) {
	t.Run("Should not reject a TTL below the 24h floor", func(t *testing.T) {
		c, err := idemcache.New(1024, time.Minute)
		require.NoError(t, err)
		defer c.Close()
	})
}
