package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

// CacheBusterParam is appended to snapshot fetches so intermediaries never
// serve a stale copy.
const CacheBusterParam = "_t"

// HTTPClient handles HTTP communication with the snapshot host and the live
// endpoints.
type HTTPClient struct {
	client       *http.Client
	baseURL      string
	userAgent    string
	tenantHeader string
	tenantID     string
	logger       *events.Logger
	now          func() time.Time

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	// Configure HTTP/2
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
		now:        time.Now,
		logger:     logger.WithField("component", "http_client"),
	}
}

// SetTenant sets the tenant header sent with every request.
func (c *HTTPClient) SetTenant(header, id string) {
	c.tenantHeader = header
	c.tenantID = id
}

// GetJSON sends a GET request and decodes the JSON object response.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values) (map[string]interface{}, error) {
	target := c.url(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, target, nil, func(req *http.Request) {
		req.Header.Set("Accept", "application/json")
	})
	if err != nil {
		return nil, err
	}

	return decodeObject(target, resp.body)
}

// PostJSON sends a JSON POST request.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	target := c.url(path)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, target, body, func(req *http.Request) {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	})
	if err != nil {
		return nil, err
	}

	return decodeObject(target, resp.body)
}

// Fetch downloads a file while defeating intermediary caches.
func (c *HTTPClient) Fetch(ctx context.Context, target string) ([]byte, error) {
	target = c.url(target)

	resp, err := c.do(ctx, http.MethodGet, target, nil, func(req *http.Request) {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")

		q := req.URL.Query()
		q.Set(CacheBusterParam, strconv.FormatInt(c.now().UnixNano(), 10))
		req.URL.RawQuery = q.Encode()
	})
	if err != nil {
		return nil, err
	}

	return resp.body, nil
}

// LastModified issues a HEAD request and returns the Last-Modified time. The
// zero time is returned when the server does not report one.
func (c *HTTPClient) LastModified(ctx context.Context, target string) (time.Time, error) {
	target = c.url(target)

	resp, err := c.do(ctx, http.MethodHead, target, nil, func(req *http.Request) {
		req.Header.Set("Cache-Control", "no-cache")
	})
	if err != nil {
		return time.Time{}, err
	}

	raw := resp.header.Get("Last-Modified")
	if raw == "" {
		return time.Time{}, nil
	}

	modified, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Last-Modified %q: %w", raw, err)
	}
	return modified, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body []byte, prepare func(*http.Request)) (*response, error) {
	requestID := events.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	logger := c.logger.WithFields(map[string]interface{}{
		"method":     method,
		"url":        target,
		"request_id": requestID,
	})
	logger.Debug("Sending request")

	var out *response
	err := c.retry(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if c.tenantHeader != "" && c.tenantID != "" {
			req.Header.Set(c.tenantHeader, c.tenantID)
		}
		if prepare != nil {
			prepare(req)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return retryable(&models.FetchError{URL: target, Err: err})
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retryable(&models.FetchError{URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)})
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			fetchErr := statusError(target, resp.StatusCode, data, requestID)
			if c.isRetryable(resp.StatusCode) {
				return retryable(fetchErr)
			}
			return fetchErr
		}

		out = &response{status: resp.StatusCode, header: resp.Header, body: data}
		return nil
	})
	if err != nil {
		logger.WithError(err).Debug("Request failed")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"status": out.status,
		"size":   len(out.body),
	}).Debug("Received response")

	return out, nil
}

// retry executes a function with exponential backoff.
func (c *HTTPClient) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay,
			}).Debug("Retrying request")

			select {
			case <-time.After(delay):
				delay *= 2 // Exponential backoff
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if !c.isRetryableError(err) {
			return err
		}
		lastErr = errors.Unwrap(err)
	}

	if c.maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable checks if an HTTP status code is retryable.
func (c *HTTPClient) isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

// isRetryableError reports whether err was marked as transient.
func (c *HTTPClient) isRetryableError(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

type retryableError struct {
	err error
}

func retryable(err error) error {
	return &retryableError{err: err}
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func statusError(target string, status int, body []byte, requestID string) *models.FetchError {
	var apiErr models.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		apiErr.StatusCode = status
		if apiErr.RequestID == "" {
			apiErr.RequestID = requestID
		}
		return &models.FetchError{URL: target, StatusCode: status, Err: &apiErr}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" || len(msg) > 200 {
		msg = http.StatusText(status)
	}
	return &models.FetchError{URL: target, StatusCode: status, Err: errors.New(msg)}
}

func decodeObject(target string, body []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var result map[string]interface{}
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("parse response from %s: %w", target, err)
	}
	if result == nil {
		return nil, fmt.Errorf("parse response from %s: expected a JSON object", target)
	}
	return result, nil
}
