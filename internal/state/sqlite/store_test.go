package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/statuswatch/internal/state"
	"github.com/jpalmerr/statuswatch/internal/state/statetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	statetest.Run(t,
		func(t *testing.T) state.Store { return newTestStore(t) },
		func(t *testing.T, prev state.Store) state.Store {
			path := prev.(*Store).Path()
			require.NoError(t, prev.Close())
			s, err := Open(path)
			require.NoError(t, err)
			return s
		},
	)
}

func TestUpdatedAtOnlyMovesOnChange(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	require.NoError(t, s.Commit(ctx, map[string]string{"GitHub": "g-1", "Slack": "s-1"}))

	second := first.Add(time.Hour)
	s.now = func() time.Time { return second }
	require.NoError(t, s.Commit(ctx, map[string]string{"GitHub": "g-1", "Slack": "s-2"}))

	got, ok, err := s.UpdatedAt(ctx, "GitHub")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	got, ok, err = s.UpdatedAt(ctx, "Slack")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)

	_, ok, err = s.UpdatedAt(ctx, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitAfterCloseIsPersistError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.Commit(context.Background(), map[string]string{"a": "1"})
	var pe *state.PersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "sqlite", pe.Backend)
}
