package transport

import (
	"context"
	"net/url"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
)

// Transport is the HTTP surface used by the snapshot stores and the live
// endpoints.
type Transport interface {
	// Live endpoints
	GetJSON(ctx context.Context, path string, query url.Values) (map[string]interface{}, error)
	PostJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error)

	// Snapshot files
	Fetch(ctx context.Context, target string) ([]byte, error)
	LastModified(ctx context.Context, target string) (time.Time, error)

	// Lifecycle
	Close() error
}

// NewTransport creates a transport for the configured API, sending the
// tenant header on every request.
func NewTransport(cfg *config.Config, logger *events.Logger) Transport {
	client := NewHTTPClient(&cfg.API, logger)
	client.SetTenant(cfg.Tenant.Header, cfg.Tenant.ID)
	return client
}
