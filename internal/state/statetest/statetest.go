// Package statetest provides a conformance suite for state.Store
// implementations. Every backend runs it from its own tests.
package statetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/statuswatch/internal/state"
)

// Factory returns a fresh, empty store. Stores are closed via t.Cleanup
// by the suite.
type Factory func(t *testing.T) state.Store

// Reopener reopens a store over the same underlying resource, used to verify
// that committed mappings survive a restart. Nil skips those checks.
type Reopener func(t *testing.T, prev state.Store) state.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory, reopen Reopener) {
	open := func(t *testing.T) state.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("LoadEmpty", func(t *testing.T) {
		s := open(t)
		got, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		want := map[string]string{
			"GitHub": "tag:github.com,2008:Incident/1",
			"Slack":  "https://status.slack.com/2024-03/abc",
		}
		require.NoError(t, s.Commit(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("CommitReplacesWholeMapping", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, map[string]string{"a": "1", "b": "2"}))
		require.NoError(t, s.Commit(ctx, map[string]string{"b": "3", "c": "4"}))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"b": "3", "c": "4"}, got)
	})

	t.Run("CommitEmpty", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, map[string]string{"a": "1"}))
		require.NoError(t, s.Commit(ctx, map[string]string{}))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("CommitIsIdempotent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		m := map[string]string{"a": "1"}
		require.NoError(t, s.Commit(ctx, m))
		require.NoError(t, s.Commit(ctx, m))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	})

	t.Run("CopyIsolation", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		m := map[string]string{"a": "1"}
		require.NoError(t, s.Commit(ctx, m))
		m["a"] = "mutated"

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1", got["a"])

		got["a"] = "mutated again"
		again, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1", again["a"])
	})

	t.Run("UnicodeAndPunctuation", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		want := map[string]string{
			"Zürich Transit":    "ü-1",
			"名前":                "id with spaces & \"quotes\"",
			"path/with/slashes": "https://example.com/a?b=c#d",
		}
		require.NoError(t, s.Commit(ctx, want))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	if reopen == nil {
		return
	}

	t.Run("SurvivesReopen", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := map[string]string{"a": "1", "b": "2"}
		require.NoError(t, s.Commit(ctx, want))

		s2 := reopen(t, s)
		t.Cleanup(func() { _ = s2.Close() })

		got, err := s2.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
