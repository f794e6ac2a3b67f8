package lead

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceStateMachine(t *testing.T) {
	t.Run("pending can only start fetching", func(t *testing.T) {
		assert.True(t, SourceStatePending.CanTransition(SourceStateFetching))
		assert.False(t, SourceStatePending.CanTransition(SourceStateSucceeded))
		assert.False(t, SourceStatePending.CanTransition(SourceStateFallback))
	})

	t.Run("fetching can reach any terminal state", func(t *testing.T) {
		assert.True(t, SourceStateFetching.CanTransition(SourceStateSucceeded))
		assert.True(t, SourceStateFetching.CanTransition(SourceStateFallback))
		assert.True(t, SourceStateFetching.CanTransition(SourceStateFailed))
	})

	t.Run("terminal states are final", func(t *testing.T) {
		for _, s := range []SourceState{SourceStateSucceeded, SourceStateFallback, SourceStateFailed} {
			assert.True(t, s.IsTerminal())
			assert.False(t, s.CanTransition(SourceStateFetching))
		}
	})
}

func TestCollectionSummary(t *testing.T) {
	t.Run("fallback transition flags fallback_used", func(t *testing.T) {
		s := NewCollectionSummary("fl_sunbiz", "FL")
		require.NoError(t, s.Transition(SourceStateFetching))
		require.NoError(t, s.Transition(SourceStateFallback))
		assert.True(t, s.FallbackUsed)
		assert.True(t, s.Degraded())
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		s := NewCollectionSummary("fl_sunbiz", "FL")
		err := s.Transition(SourceStateSucceeded)
		assert.Error(t, err)
		assert.Equal(t, SourceStatePending, s.State)
	})

	t.Run("complete stamps elapsed time once", func(t *testing.T) {
		s := NewCollectionSummary("fl_sunbiz", "FL")
		require.NoError(t, s.Transition(SourceStateFetching))
		require.NoError(t, s.Transition(SourceStateSucceeded))
		s.Complete()
		first := s.CompletedAt
		time.Sleep(time.Millisecond)
		s.Complete()
		assert.Equal(t, first, s.CompletedAt)
		assert.GreaterOrEqual(t, s.Elapsed(), time.Duration(0))
	})

	t.Run("partial flush marks summary degraded", func(t *testing.T) {
		s := NewCollectionSummary("fl_sunbiz", "FL")
		s.Partial = true
		assert.True(t, s.Degraded())
	})
}

func TestTrailingWindow(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	w := TrailingWindow(30, now)

	assert.Equal(t, 30, w.Days())
	assert.True(t, w.Contains(now.AddDate(0, 0, -10)))
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(now.AddDate(0, 0, -31)))
	assert.False(t, w.Contains(now.AddDate(0, 0, 1)))
}
