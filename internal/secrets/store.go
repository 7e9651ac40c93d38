package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
)

// Store retains interactively entered secrets per tenant.
type Store interface {
	// Get returns the retained secret for a tenant.
	Get(ctx context.Context, tenantID string) (string, bool, error)

	// Put retains a secret for a tenant.
	Put(ctx context.Context, tenantID, secret string) error

	// Delete forgets the tenant's secret.
	Delete(ctx context.Context, tenantID string) error

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrStoreClosed = errors.New("secret store is closed")
)

// NewStore creates the store for the configured retention policy.
func NewStore(cfg *config.SecretConfig, logger *events.Logger) (Store, error) {
	switch cfg.Retention {
	case config.RetentionSession, "":
		return NewMemoryStore(), nil
	case config.RetentionPersistent:
		return NewSQLiteStore(cfg.StorePath, logger)
	case config.RetentionNone:
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown secret retention: %s", cfg.Retention)
	}
}

// MemoryStore keeps secrets for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
	closed  bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, tenantID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrStoreClosed
	}
	secret, ok := m.secrets[tenantID]
	return secret, ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, tenantID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.secrets[tenantID] = secret
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.secrets, tenantID)
	return nil
}

// Close drops every secret.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.secrets = make(map[string]string)
	m.closed = true
	return nil
}

// NopStore never retains anything.
type NopStore struct{}

func (NopStore) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NopStore) Put(context.Context, string, string) error         { return nil }
func (NopStore) Delete(context.Context, string) error              { return nil }
func (NopStore) Close() error                                      { return nil }
