package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Messages []string          `json:"messages"`
	Slots    map[string]string `json:"slots,omitempty"`
	Cost     *float64          `json:"cost,omitempty"`
}

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store[testState]) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing thread", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty thread id", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Load(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidThreadID)
		_, err = st.Save(ctx, Checkpoint[testState]{})
		assert.ErrorIs(t, err, ErrInvalidThreadID)
	})

	t.Run("save then load round trip", func(t *testing.T) {
		st := newStore(t)
		cost := 50.0
		saved, err := st.Save(ctx, Checkpoint[testState]{
			ThreadID: "t-1",
			Cursor:   "wait_for_user_input",
			State: testState{
				Messages: []string{"hello", "which phone?"},
				Slots:    map[string]string{"name": "John"},
				Cost:     &cost,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)
		assert.False(t, saved.UpdatedAt.IsZero())

		got, err := st.Load(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, "t-1", got.ThreadID)
		assert.Equal(t, "wait_for_user_input", got.Cursor)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, []string{"hello", "which phone?"}, got.State.Messages)
		assert.Equal(t, "John", got.State.Slots["name"])
		require.NotNil(t, got.State.Cost)
		assert.Equal(t, 50.0, *got.State.Cost)
	})

	t.Run("optimistic versioning", func(t *testing.T) {
		st := newStore(t)
		first, err := st.Save(ctx, Checkpoint[testState]{ThreadID: "t-v", State: testState{Messages: []string{"a"}}})
		require.NoError(t, err)

		// A second creator loses.
		_, err = st.Save(ctx, Checkpoint[testState]{ThreadID: "t-v", State: testState{Messages: []string{"b"}}})
		assert.ErrorIs(t, err, ErrVersionConflict)

		first.State.Messages = append(first.State.Messages, "c")
		second, err := st.Save(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.Version)

		// Saving from the stale version is rejected and changes nothing.
		first.State.Messages = []string{"stale"}
		_, err = st.Save(ctx, first)
		assert.ErrorIs(t, err, ErrVersionConflict)

		got, err := st.Load(ctx, "t-v")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, got.State.Messages)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("cursor cleared", func(t *testing.T) {
		st := newStore(t)
		cp, err := st.Save(ctx, Checkpoint[testState]{ThreadID: "t-c", Cursor: "wait"})
		require.NoError(t, err)
		cp.Cursor = ""
		_, err = st.Save(ctx, cp)
		require.NoError(t, err)

		got, err := st.Load(ctx, "t-c")
		require.NoError(t, err)
		assert.Empty(t, got.Cursor)
	})

	t.Run("load and save unchanged is a no-op", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Save(ctx, Checkpoint[testState]{ThreadID: "t-i", Cursor: "wait", State: testState{Messages: []string{"x"}}})
		require.NoError(t, err)

		loaded, err := st.Load(ctx, "t-i")
		require.NoError(t, err)
		_, err = st.Save(ctx, loaded)
		require.NoError(t, err)

		again, err := st.Load(ctx, "t-i")
		require.NoError(t, err)
		assert.Equal(t, loaded.Cursor, again.Cursor)
		assert.Equal(t, loaded.State, again.State)
	})

	t.Run("threads are independent", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Save(ctx, Checkpoint[testState]{ThreadID: "a", Cursor: "x"})
		require.NoError(t, err)
		_, err = st.Save(ctx, Checkpoint[testState]{ThreadID: "b", Cursor: "y"})
		require.NoError(t, err)

		a, err := st.Load(ctx, "a")
		require.NoError(t, err)
		b, err := st.Load(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "x", a.Cursor)
		assert.Equal(t, "y", b.Cursor)
	})

	t.Run("concurrent writers from one version", func(t *testing.T) {
		st := newStore(t)
		base, err := st.Save(ctx, Checkpoint[testState]{ThreadID: "t-race"})
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := st.Save(ctx, base); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrVersionConflict)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})
}
