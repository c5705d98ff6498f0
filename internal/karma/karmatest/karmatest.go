// Package karmatest holds a conformance suite every karma.Store must pass.
package karmatest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banebot/internal/karma"
)

// RunStoreTests exercises store behaviour shared by all backends. newStore
// must return an empty store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) karma.Store) {
	ctx := context.Background()

	t.Run("unknown member has zero karma", func(t *testing.T) {
		s := newStore(t)
		k, err := s.Karma(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.Zero(t, k)

		ignored, err := s.IsIgnored(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.False(t, ignored)
	})

	t.Run("add karma accumulates per guild", func(t *testing.T) {
		s := newStore(t)
		total, err := s.AddKarma(ctx, "g1", "u1", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		total, err = s.AddKarma(ctx, "g1", "u1", 1)
		require.NoError(t, err)
		assert.Equal(t, 2, total)

		total, err = s.AddKarma(ctx, "g1", "u1", -3)
		require.NoError(t, err)
		assert.Equal(t, -1, total)

		other, err := s.Karma(ctx, "g2", "u1")
		require.NoError(t, err)
		assert.Zero(t, other)
	})

	t.Run("concurrent adds are not lost", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AddKarma(ctx, "g1", "u1", 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		k, err := s.Karma(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.Equal(t, 20, k)
	})

	t.Run("toggle ignore", func(t *testing.T) {
		s := newStore(t)
		ignored, err := s.ToggleIgnore(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.True(t, ignored)

		ignored, err = s.IsIgnored(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.True(t, ignored)

		ignored, err = s.ToggleIgnore(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.False(t, ignored)

		_, err = s.AddKarma(ctx, "g1", "u2", 4)
		require.NoError(t, err)
		ignored, err = s.ToggleIgnore(ctx, "g1", "u2")
		require.NoError(t, err)
		assert.True(t, ignored)
		k, err := s.Karma(ctx, "g1", "u2")
		require.NoError(t, err)
		assert.Equal(t, 4, k, "ignoring keeps existing karma")
	})

	t.Run("leaderboard ordering and limit", func(t *testing.T) {
		s := newStore(t)
		for user, k := range map[string]int{"a": 3, "b": 10, "c": -2, "d": 3} {
			_, err := s.AddKarma(ctx, "g1", user, k)
			require.NoError(t, err)
		}
		_, err := s.AddKarma(ctx, "g2", "z", 100)
		require.NoError(t, err)

		top, err := s.Leaderboard(ctx, "g1", 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, "b", top[0].UserID)
		assert.Equal(t, 10, top[0].Karma)
		assert.Equal(t, "a", top[1].UserID)
		assert.Equal(t, "d", top[2].UserID)

		all, err := s.Leaderboard(ctx, "g1", 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
		assert.Equal(t, "c", all[3].UserID)

		empty, err := s.Leaderboard(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("reactions", func(t *testing.T) {
		s := newStore(t)
		r, err := s.Reactions(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, karma.Reactions{}, r)

		require.NoError(t, s.SetReaction(ctx, "g1", karma.Up, "👍"))
		require.NoError(t, s.SetReaction(ctx, "g1", karma.Down, "123456789"))
		require.NoError(t, s.SetReaction(ctx, "g1", karma.Up, "⬆️"))

		r, err = s.Reactions(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, karma.Reactions{Upvote: "⬆️", Downvote: "123456789"}, r)

		other, err := s.Reactions(ctx, "g2")
		require.NoError(t, err)
		assert.Equal(t, karma.Reactions{}, other)

		assert.ErrorIs(t, s.SetReaction(ctx, "g1", karma.None, "x"), karma.ErrInvalidVote)
	})
}
