package client_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/client"
	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/models"
	"github.com/TheMichaelB/metricsnap/test/testutil"
)

func TestClientEndToEnd(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()

	doc := testutil.NewSnapshot(testutil.TestTenant).
		WithPeriod("this_month", map[string]any{"revenue": 100, "top_donors": []any{"Ada"}}).
		EncryptFields("top_donors").
		Encrypted(t, testutil.TestSecret)
	server.SetFile("/tenants/acme/dashboard/cache/consolidated_cache.json", doc, time.Now().Add(-time.Hour))

	t.Setenv("METRICSNAP_TEST_TOKEN", testutil.TestSecret)

	cfg := testutil.TestConfig(server.URL)
	cfg.Cache.PagePath = "/tenants/acme/dashboard/index.html"
	cfg.Secret.TokenEnv = "METRICSNAP_TEST_TOKEN"

	ctx := context.Background()
	c, err := client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, server.URL+"/tenants/acme/dashboard/cache/consolidated_cache.json", c.SnapshotLocation())

	metrics, err := c.Metrics.GetMetrics(ctx, "today")
	require.NoError(t, err)
	assert.Equal(t, []any{"Ada"}, metrics["top_donors"])

	require.NoError(t, c.ForgetSecret(ctx))
	assert.False(t, c.Metrics.IsCacheValid(ctx, "today"))
}

func TestClientWithoutSecretFails(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()

	doc := testutil.NewSnapshot(testutil.TestTenant).
		WithPeriod("this_year", map[string]any{"revenue": 1}).
		EncryptFields().
		Encrypted(t, testutil.TestSecret)
	server.SetFile("/cache/consolidated_cache.json", doc, time.Now().Add(-time.Hour))

	cfg := testutil.TestConfig(server.URL)
	ctx := context.Background()
	c, err := client.New(ctx, cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Metrics.GetMetrics(ctx, "this_year")
	assert.ErrorIs(t, err, models.ErrNoSecret)
}

func TestClientFileBackend(t *testing.T) {
	root := t.TempDir()
	cfg := testutil.TestConfig("http://127.0.0.1:0")
	cfg.Cache.Backend = config.BackendFile
	cfg.Cache.LocalRoot = root
	cfg.Secret.Retention = config.RetentionPersistent
	cfg.Secret.StorePath = filepath.Join(root, "state", "secrets.db")

	c, err := client.New(context.Background(), cfg, testutil.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, filepath.Join(root, "cache", "consolidated_cache.json"), c.SnapshotLocation())
	assert.DirExists(t, filepath.Join(root, "state"))
}

func TestClientRejectsInvalidMode(t *testing.T) {
	cfg := testutil.TestConfig("http://127.0.0.1:0")
	cfg.Cache.Mode = "stream"

	_, err := client.New(context.Background(), cfg, testutil.NewTestLogger())
	assert.Equal(t, models.ErrCodeConfig, models.ErrorCode(err))
}
