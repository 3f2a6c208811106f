package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/planmark/internal/catalog"
	"github.com/dgallion1/planmark/internal/catalog/catalogtest"
	"github.com/dgallion1/planmark/internal/plan"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "planmark.db"))
	require.NoError(t, err)
	require.NotNil(t, store)
	return store
}

func TestStore(t *testing.T) {
	catalogtest.Run(t, func(t *testing.T) catalog.Store { return setupTestStore(t) })
}

func TestStore_InMemory(t *testing.T) {
	catalogtest.Run(t, func(t *testing.T) catalog.Store {
		s, err := Open(":memory:")
		require.NoError(t, err)
		return s
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planmark.db")
	s, err := Open(path)
	require.NoError(t, err)
	fp, _ := catalogtest.Seed(t, s)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)

	got, err := s.GetPage(context.Background(), fp.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.PageFloorPlan, got.PageType)
	assert.Equal(t, path, s.Path())
}
