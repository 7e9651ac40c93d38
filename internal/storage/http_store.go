package storage

import (
	"context"
	"strings"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/transport"
)

// HTTPStore reads snapshots from the static file server.
type HTTPStore struct {
	baseURL   string
	transport transport.Transport
	logger    *events.Logger
}

// NewHTTPStore creates a store rooted at baseURL. An empty baseURL leaves
// paths relative to the transport's own base.
func NewHTTPStore(baseURL string, tr transport.Transport, logger *events.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: tr,
		logger:    logger.WithField("component", "http_store"),
	}
}

// Read downloads the file.
func (s *HTTPStore) Read(ctx context.Context, path string) ([]byte, error) {
	target := s.Location(path)

	data, err := s.transport.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"url":  target,
		"size": len(data),
	}).Debug("Fetched snapshot")

	return data, nil
}

// Modified returns the server's Last-Modified time.
func (s *HTTPStore) Modified(ctx context.Context, path string) (time.Time, error) {
	return s.transport.LastModified(ctx, s.Location(path))
}

// Location returns the absolute URL for path.
func (s *HTTPStore) Location(path string) string {
	if s.baseURL == "" {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.baseURL + path
}
