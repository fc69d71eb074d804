package localstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinesync/internal/database"
	"cinesync/models"
	"cinesync/services/localstore"
)

func newStore(t *testing.T) *localstore.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "cinesync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return localstore.New(db)
}

func TestAbsentKeyIsNotAnError(t *testing.T) {
	store := newStore(t)

	value, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSetGetRemove(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, models.ListToWatch, "doc-v1"))

	value, ok, err := store.Get(ctx, models.ListToWatch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "doc-v1", value)

	// Overwrite replaces the previous value.
	require.NoError(t, store.Set(ctx, models.ListToWatch, "doc-v2"))
	value, ok, err = store.Get(ctx, models.ListToWatch)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "doc-v2", value)

	require.NoError(t, store.Remove(ctx, models.ListToWatch))
	_, ok, err = store.Get(ctx, models.ListToWatch)
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing an absent key succeeds.
	require.NoError(t, store.Remove(ctx, models.ListToWatch))
}

func TestBackendFlagSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cinesync.db")
	ctx := context.Background()

	db, err := database.Open(path)
	require.NoError(t, err)
	store := localstore.New(db)
	require.NoError(t, store.Set(ctx, models.KeyBackendFlag, string(models.BackendRemote)))
	require.NoError(t, db.Close())

	db, err = database.Open(path)
	require.NoError(t, err)
	defer db.Close()

	value, ok, err := localstore.New(db).Get(ctx, models.KeyBackendFlag)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, string(models.BackendRemote), value)
}
