package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
	"github.com/TheMichaelB/metricsnap/internal/storage"
)

func TestLocalStoreRead(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tenants", "acme", "dashboard", "cache")
	require.NoError(t, os.MkdirAll(dir, 0755))

	file := filepath.Join(dir, "consolidated_cache.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"tenant_id":"acme"}`), 0644))

	modTime := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(file, modTime, modTime))

	store, err := storage.NewLocalStore(root, events.NewNopLogger())
	require.NoError(t, err)

	ctx := context.Background()
	path := "/tenants/acme/dashboard/cache/consolidated_cache.json"

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id":"acme"}`, string(data))

	got, err := store.Modified(ctx, path)
	require.NoError(t, err)
	assert.True(t, modTime.Equal(got))

	info, err := store.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)

	assert.Equal(t, file, store.Location(path))
}

func TestLocalStoreMissingFile(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), events.NewNopLogger())
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "/cache/consolidated_cache.json")

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = store.Modified(context.Background(), "/cache/consolidated_cache.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalStoreMaxFileSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.json"), make([]byte, 64), 0644))

	store, err := storage.NewLocalStore(root, events.NewNopLogger())
	require.NoError(t, err)
	store.SetMaxFileSize(32)

	_, err = store.Read(context.Background(), "big.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLocalStoreRequiresDirectory(t *testing.T) {
	_, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "missing"), events.NewNopLogger())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = storage.NewLocalStore(file, events.NewNopLogger())
	assert.Error(t, err)
}

func TestLocalStoreCancelledContext(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), events.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Read(ctx, "x.json")
	assert.ErrorIs(t, err, context.Canceled)
}
