package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
	"github.com/TheMichaelB/metricsnap/internal/storage"
	"github.com/TheMichaelB/metricsnap/internal/transport"
)

func TestHTTPStore(t *testing.T) {
	mock := transport.NewMockTransport()
	modified := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.AddFile("http://static.test/dashboard/cache/consolidated_cache.json", []byte(`{}`), modified)

	store := storage.NewHTTPStore("http://static.test/", mock, events.NewNopLogger())
	ctx := context.Background()

	assert.Equal(t, "http://static.test/dashboard/cache/consolidated_cache.json",
		store.Location("/dashboard/cache/consolidated_cache.json"))
	assert.Equal(t, "http://static.test/a.json", store.Location("a.json"))

	data, err := store.Read(ctx, "/dashboard/cache/consolidated_cache.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), data)

	got, err := store.Modified(ctx, "/dashboard/cache/consolidated_cache.json")
	require.NoError(t, err)
	assert.Equal(t, modified, got)

	_, err = store.Read(ctx, "/missing.json")
	assert.Error(t, err)
}

func TestHTTPStoreWithoutBase(t *testing.T) {
	store := storage.NewHTTPStore("", transport.NewMockTransport(), events.NewNopLogger())
	assert.Equal(t, "/cache/x.json", store.Location("/cache/x.json"))
}

type fakeS3 struct {
	objects  map[string][]byte
	modified map[string]time.Time
	gets     []string
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)
	f.gets = append(f.gets, aws.ToString(params.Bucket)+"/"+key)

	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)
	if _, ok := f.objects[key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{LastModified: aws.Time(f.modified[key])}, nil
}

func TestS3Store(t *testing.T) {
	modified := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeS3{
		objects:  map[string][]byte{"sites/dashboard/cache/consolidated_cache.json": []byte(`{"tenant_id":"acme"}`)},
		modified: map[string]time.Time{"sites/dashboard/cache/consolidated_cache.json": modified},
	}

	store := storage.NewS3StoreWithClient(client, "snapshots", "/sites/", events.NewNopLogger())
	ctx := context.Background()
	path := "/dashboard/cache/consolidated_cache.json"

	assert.Equal(t, "s3://snapshots/sites/dashboard/cache/consolidated_cache.json", store.Location(path))

	data, err := store.Read(ctx, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id":"acme"}`, string(data))
	assert.Equal(t, []string{"snapshots/sites/dashboard/cache/consolidated_cache.json"}, client.gets)

	got, err := store.Modified(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, modified, got)
}

func TestS3StoreNotFound(t *testing.T) {
	store := storage.NewS3StoreWithClient(&fakeS3{}, "snapshots", "", events.NewNopLogger())

	_, err := store.Read(context.Background(), "/missing.json")

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 404, fetchErr.StatusCode)
	assert.Equal(t, "s3://snapshots/missing.json", fetchErr.URL)

	_, err = store.Modified(context.Background(), "/missing.json")
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 404, fetchErr.StatusCode)
}

func TestMockStore(t *testing.T) {
	store := storage.NewMockStore()
	modified := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store.Put("/a.json", []byte("a"), modified)

	data, err := store.Read(ctx, "/a.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
	assert.Equal(t, 1, store.Reads("/a.json"))

	got, err := store.Modified(ctx, "/a.json")
	require.NoError(t, err)
	assert.Equal(t, modified, got)

	later := modified.Add(time.Hour)
	store.Touch("/a.json", later)
	got, err = store.Modified(ctx, "/a.json")
	require.NoError(t, err)
	assert.Equal(t, later, got)

	_, err = store.Read(ctx, "/b.json")
	assert.Error(t, err)

	store.ReadError = errors.New("boom")
	_, err = store.Read(ctx, "/a.json")
	assert.EqualError(t, err, "boom")
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	logger := events.NewNopLogger()

	cfg := config.DefaultConfig().Cache
	store, err := storage.NewStore(ctx, &cfg, transport.NewMockTransport(), logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.HTTPStore{}, store)

	cfg.Backend = config.BackendFile
	cfg.LocalRoot = t.TempDir()
	store, err = storage.NewStore(ctx, &cfg, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStore{}, store)

	cfg.Backend = "ftp"
	_, err = storage.NewStore(ctx, &cfg, nil, logger)
	assert.Error(t, err)
}
