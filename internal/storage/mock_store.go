package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

// MockStore provides an in-memory SnapshotStore for testing.
type MockStore struct {
	mu       sync.RWMutex
	files    map[string][]byte
	modified map[string]time.Time
	reads    map[string]int

	// Error injection
	ReadError     error
	ModifiedError error
}

// NewMockStore creates a mock snapshot store.
func NewMockStore() *MockStore {
	return &MockStore{
		files:    make(map[string][]byte),
		modified: make(map[string]time.Time),
		reads:    make(map[string]int),
	}
}

// Put stores data for path with the given modification time.
func (m *MockStore) Put(path string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[path] = make([]byte, len(data))
	copy(m.files[path], data)
	m.modified[path] = modTime
}

// Touch updates the modification time of path.
func (m *MockStore) Touch(path string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modified[path] = modTime
}

// Read retrieves file contents.
func (m *MockStore) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads[path]++

	if m.ReadError != nil {
		return nil, m.ReadError
	}

	data, ok := m.files[path]
	if !ok {
		return nil, &models.FetchError{URL: path, StatusCode: 404, Err: os.ErrNotExist}
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Modified returns the stored modification time.
func (m *MockStore) Modified(ctx context.Context, path string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ModifiedError != nil {
		return time.Time{}, m.ModifiedError
	}

	if _, ok := m.files[path]; !ok {
		return time.Time{}, &models.FetchError{URL: path, StatusCode: 404, Err: os.ErrNotExist}
	}
	return m.modified[path], nil
}

// Location returns a mock URI.
func (m *MockStore) Location(path string) string {
	return fmt.Sprintf("mock://%s", path)
}

// Reads returns how many times path was read.
func (m *MockStore) Reads(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[path]
}
