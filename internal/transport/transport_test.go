package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
	"github.com/TheMichaelB/metricsnap/internal/transport"
)

func newClient(t *testing.T, baseURL string, maxRetries int) *transport.HTTPClient {
	t.Helper()

	cfg := &config.APIConfig{
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		UserAgent:  "test",
	}

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	return transport.NewHTTPClient(cfg, logger)
}

func TestHTTPClientRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 3)

	resp, err := client.PostJSON(context.Background(), "/test", map[string]string{"key": "value"})

	require.NoError(t, err)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestHTTPClientNoRetryByDefault(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newClient(t, server.URL, 0)

	_, err := client.GetJSON(context.Background(), "/api/metrics", nil)

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.NotContains(t, err.Error(), "max retries")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestHTTPClientGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/metrics", r.URL.Path)
		assert.Equal(t, "this_month", r.URL.Query().Get("period"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant-ID"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"metrics": {"total": 5}}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 0)
	client.SetTenant("X-Tenant-ID", "acme")

	resp, err := client.GetJSON(context.Background(), "/api/metrics", url.Values{"period": {"this_month"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"total": json.Number("5")}, resp["metrics"])
}

func TestHTTPClientRequestIDFromContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 0)
	ctx := events.WithRequestID(context.Background(), "req-42")

	_, err := client.GetJSON(ctx, "/x", nil)
	require.NoError(t, err)
}

func TestHTTPClientFetchBypassesCaches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dashboard/cache/consolidated_cache.json", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get(transport.CacheBusterParam))
		assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		_, _ = w.Write([]byte(`{"tenant_id": "acme"}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 0)

	data, err := client.Fetch(context.Background(), "/dashboard/cache/consolidated_cache.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id": "acme"}`, string(data))
}

func TestHTTPClientFetchAbsoluteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newClient(t, "http://unused.invalid", 0)

	data, err := client.Fetch(context.Background(), server.URL+"/file.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
}

func TestHTTPClientFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := newClient(t, server.URL, 3)

	_, err := client.Fetch(context.Background(), "/missing.json")

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, server.URL+"/missing.json", fetchErr.URL)
	assert.Equal(t, models.ErrCodeFetch, models.ErrorCode(err))
}

func TestHTTPClientLastModified(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/with" {
			w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newClient(t, server.URL, 0)
	ctx := context.Background()

	got, err := client.LastModified(ctx, "/with")
	require.NoError(t, err)
	assert.True(t, modified.Equal(got))

	got, err = client.LastModified(ctx, "/without")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestHTTPClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{
			"code": "invalid_request",
			"message": "Missing required field"
		}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 3)

	_, err := client.PostJSON(context.Background(), "/api/query", map[string]string{"query": "x"})
	require.Error(t, err)

	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request", apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, err.Error(), "400")
}

func TestHTTPClientRejectsNonObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1, 2, 3]`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 0)

	_, err := client.GetJSON(context.Background(), "/list", nil)
	assert.Error(t, err)
}

func TestTransportInterface(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tenant-9", r.Header.Get("X-Org"))
		switch r.URL.Path {
		case "/api/query":
			_, _ = w.Write([]byte(`{"results": [{"id": 1}]}`))
		case "/snap.json":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.Tenant.ID = "tenant-9"
	cfg.Tenant.Header = "X-Org"

	tr := transport.NewTransport(cfg, events.NewNopLogger())
	defer tr.Close()

	ctx := context.Background()

	resp, err := tr.PostJSON(ctx, "/api/query", map[string]string{"query": "donors"})
	require.NoError(t, err)
	assert.Len(t, resp["results"], 1)

	data, err := tr.Fetch(ctx, "/snap.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), data)
}

func TestMockTransport(t *testing.T) {
	mock := transport.NewMockTransport()
	modified := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.AddGetResponse("/api/metrics", map[string]interface{}{"metrics": map[string]interface{}{"a": 1}})
	mock.AddPostResponse("/api/query", struct {
		Results []int `json:"results"`
	}{Results: []int{1, 2}})
	mock.AddFile("/cache.json", []byte(`{}`), modified)

	ctx := context.Background()

	resp, err := mock.GetJSON(ctx, "/api/metrics", url.Values{"period": {"today"}})
	require.NoError(t, err)
	assert.Contains(t, resp, "metrics")

	resp, err = mock.PostJSON(ctx, "/api/query", map[string]string{"query": "x"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, resp["results"])

	data, err := mock.Fetch(ctx, "/cache.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), data)

	got, err := mock.LastModified(ctx, "/cache.json")
	require.NoError(t, err)
	assert.Equal(t, modified, got)

	_, err = mock.Fetch(ctx, "/missing.json")
	assert.Error(t, err)

	// Verify tracking
	require.Len(t, mock.GetRequests, 1)
	assert.Equal(t, "today", mock.GetRequests[0].Query.Get("period"))
	assert.Len(t, mock.PostRequests, 1)
	assert.Equal(t, 1, mock.FetchCount("/cache.json"))
	assert.Equal(t, []string{"/cache.json"}, mock.ModifiedRequests)

	require.NoError(t, mock.Close())
	assert.True(t, mock.Closed())
}
