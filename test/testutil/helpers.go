package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/config"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"msg"`
	Time    string `json:"time"`
}

// TestServer serves a snapshot file and the live endpoints.
type TestServer struct {
	*httptest.Server

	mu       sync.RWMutex
	files    map[string]*servedFile
	gets     map[string]int
	heads    map[string]int
	live     map[string]any
	crema    any
	entities map[string]any
	results  []any
	tenants  []string
	requests []recordedRequest
}

type servedFile struct {
	data    []byte
	modTime time.Time
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// NewTestServer creates a new test HTTP server.
func NewTestServer() *TestServer {
	ts := &TestServer{
		files:    make(map[string]*servedFile),
		gets:     make(map[string]int),
		heads:    make(map[string]int),
		live:     make(map[string]any),
		entities: make(map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/metrics", ts.handleMetrics)
	mux.HandleFunc("/api/crema/discovery", ts.handleDiscovery)
	mux.HandleFunc("/api/crema/entities", ts.handleEntities)
	mux.HandleFunc("/api/query", ts.handleQuery)
	mux.HandleFunc("/", ts.handleFile)

	ts.Server = httptest.NewServer(mux)
	return ts
}

// SetFile publishes data at path with a modification time.
func (ts *TestServer) SetFile(path string, data []byte, modTime time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.files[path] = &servedFile{data: data, modTime: modTime}
}

// Touch changes the modification time of a published file.
func (ts *TestServer) Touch(path string, modTime time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if f, ok := ts.files[path]; ok {
		f.modTime = modTime
	}
}

// Gets returns how many GET requests path received.
func (ts *TestServer) Gets(path string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.gets[path]
}

// Heads returns how many HEAD requests path received.
func (ts *TestServer) Heads(path string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.heads[path]
}

// SetLiveMetrics sets the live response body for a period.
func (ts *TestServer) SetLiveMetrics(period string, body any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.live[period] = body
}

// SetDiscovery sets the live discovery response body.
func (ts *TestServer) SetDiscovery(body any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.crema = body
}

// SetEntities sets the live entity response for a type.
func (ts *TestServer) SetEntities(entityType string, body any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.entities[entityType] = body
}

// SetQueryResults sets the live query results.
func (ts *TestServer) SetQueryResults(results []any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.results = results
}

// Tenants returns the tenant header of every live request.
func (ts *TestServer) Tenants() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]string(nil), ts.tenants...)
}

// LastBody returns the decoded body of the last request to path.
func (ts *TestServer) LastBody(path string) map[string]any {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	for i := len(ts.requests) - 1; i >= 0; i-- {
		if ts.requests[i].Path == path {
			return ts.requests[i].Body
		}
	}
	return nil
}

func (ts *TestServer) handleFile(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	f, ok := ts.files[r.URL.Path]
	switch r.Method {
	case http.MethodGet:
		ts.gets[r.URL.Path]++
	case http.MethodHead:
		ts.heads[r.URL.Path]++
	}
	ts.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, r.URL.Path, f.modTime, bytes.NewReader(f.data))
}

func (ts *TestServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ts.record(r)
	period := r.URL.Query().Get("period")

	ts.mu.RLock()
	body, ok := ts.live[period]
	ts.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = writeJSON(w, map[string]any{"code": "not_found", "message": "no metrics for " + period})
		return
	}
	_ = writeJSON(w, body)
}

func (ts *TestServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	ts.record(r)

	ts.mu.RLock()
	body := ts.crema
	ts.mu.RUnlock()

	if body == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = writeJSON(w, body)
}

func (ts *TestServer) handleEntities(w http.ResponseWriter, r *http.Request) {
	req := ts.record(r)
	entityType, _ := req["type"].(string)

	ts.mu.RLock()
	body, ok := ts.entities[entityType]
	ts.mu.RUnlock()

	if !ok {
		body = map[string]any{"entities": []any{}}
	}
	_ = writeJSON(w, body)
}

func (ts *TestServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	ts.record(r)

	ts.mu.RLock()
	results := ts.results
	ts.mu.RUnlock()

	_ = writeJSON(w, map[string]any{"data": map[string]any{"results": results}})
}

func (ts *TestServer) record(r *http.Request) map[string]any {
	var body map[string]any
	if r.Body != nil {
		_ = decodeJSON(r.Body, &body)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tenants = append(ts.tenants, r.Header.Get("X-Tenant-ID"))
	ts.requests = append(ts.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	return body
}

// TestConfig returns a configuration pointing at baseURL for both the
// snapshot host and the live API.
func TestConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tenant.ID = TestTenant
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Cache.BaseURL = baseURL
	cfg.Secret.Prompt = false
	cfg.Secret.TokenEnv = ""
	cfg.Log = config.LogConfig{Level: "debug", Format: "json"}
	return cfg
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a clock at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// LogOutput captures log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	// Parse log entry from JSON
	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// utility functions
func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}
