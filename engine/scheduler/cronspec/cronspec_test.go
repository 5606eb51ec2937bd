package cronspec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtalishaw/super-enigma/engine/scheduler/cronspec"
)

func TestParse(t *testing.T) {
	t.Run("Should parse a five-field expression with a valid timezone", func(t *testing.T) {
		s, err := cronspec.Parse("*/5 * * * *", "America/New_York")
		require.NoError(t, err)
		assert.Equal(t, "*/5 * * * *", s.String())
	})

	t.Run("Should reject a malformed expression", func(t *testing.T) {
		_, err := cronspec.Parse("not a cron", "UTC")
		assert.Error(t, err)
	})

	t.Run("Should reject an unknown timezone", func(t *testing.T) {
		_, err := cronspec.Parse("* * * * *", "Mars/Olympus_Mons")
		assert.Error(t, err)
	})

	t.Run("Should default to UTC when timezone is empty", func(t *testing.T) {
		s, err := cronspec.Parse("0 0 * * *", "")
		require.NoError(t, err)
		next := s.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, 0, next.Hour())
	})
}

func TestEnumerateDueTimes(t *testing.T) {
	t.Run("Should enumerate every tick within the window", func(t *testing.T) {
		s, err := cronspec.Parse("*/15 * * * *", "UTC")
		require.NoError(t, err)
		since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		until := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
		due := cronspec.EnumerateDueTimes(s, since, until)
		require.Len(t, due, 4)
		assert.Equal(t, 15, due[0].Minute())
		assert.Equal(t, 0, due[3].Minute())
		assert.Equal(t, 1, due[3].Hour())
	})

	t.Run("Should return nothing when the window contains no due time", func(t *testing.T) {
		s, err := cronspec.Parse("0 0 1 1 *", "UTC")
		require.NoError(t, err)
		since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		until := time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC)
		due := cronspec.EnumerateDueTimes(s, since, until)
		assert.Empty(t, due)
	})
}
