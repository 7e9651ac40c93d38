package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// MockTransport provides a mock implementation for testing.
type MockTransport struct {
	mu sync.Mutex

	// Response configuration
	GetResponses  map[string]interface{}
	PostResponses map[string]interface{}
	Files         map[string][]byte
	Modified      map[string]time.Time

	// Error injection
	GetError      error
	PostError     error
	FetchError    error
	ModifiedError error

	// Request tracking
	GetRequests      []GetRequest
	PostRequests     []PostRequest
	FetchRequests    []string
	ModifiedRequests []string

	closed bool
}

// GetRequest tracks GET requests.
type GetRequest struct {
	Path  string
	Query url.Values
}

// PostRequest tracks POST requests.
type PostRequest struct {
	Path    string
	Payload interface{}
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		GetResponses:  make(map[string]interface{}),
		PostResponses: make(map[string]interface{}),
		Files:         make(map[string][]byte),
		Modified:      make(map[string]time.Time),
	}
}

// GetJSON mocks HTTP GET.
func (m *MockTransport) GetJSON(ctx context.Context, path string, query url.Values) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetRequests = append(m.GetRequests, GetRequest{Path: path, Query: query})

	if m.GetError != nil {
		return nil, m.GetError
	}

	if resp, ok := m.GetResponses[path]; ok {
		return toMap(resp), nil
	}

	return nil, fmt.Errorf("no mock response for GET %s", path)
}

// PostJSON mocks HTTP POST.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PostRequests = append(m.PostRequests, PostRequest{
		Path:    path,
		Payload: payload,
	})

	if m.PostError != nil {
		return nil, m.PostError
	}

	if resp, ok := m.PostResponses[path]; ok {
		return toMap(resp), nil
	}

	return nil, fmt.Errorf("no mock response for POST %s", path)
}

// Fetch mocks a file download.
func (m *MockTransport) Fetch(ctx context.Context, target string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchRequests = append(m.FetchRequests, target)

	if m.FetchError != nil {
		return nil, m.FetchError
	}

	if data, ok := m.Files[target]; ok {
		return data, nil
	}

	return nil, fmt.Errorf("file not found: %s", target)
}

// LastModified mocks a HEAD request.
func (m *MockTransport) LastModified(ctx context.Context, target string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ModifiedRequests = append(m.ModifiedRequests, target)

	if m.ModifiedError != nil {
		return time.Time{}, m.ModifiedError
	}

	return m.Modified[target], nil
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for test setup

// AddGetResponse adds a mock GET response.
func (m *MockTransport) AddGetResponse(path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetResponses[path] = response
}

// AddPostResponse adds a mock POST response.
func (m *MockTransport) AddPostResponse(path string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostResponses[path] = response
}

// AddFile registers file content and its modification time.
func (m *MockTransport) AddFile(target string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[target] = data
	m.Modified[target] = modified
}

// FetchCount returns how many times target was downloaded.
func (m *MockTransport) FetchCount(target string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.FetchRequests {
		if t == target {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func toMap(resp interface{}) map[string]interface{} {
	if mapResp, ok := resp.(map[string]interface{}); ok {
		return mapResp
	}

	// Convert to map if needed
	data, _ := json.Marshal(resp)
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	return result
}
