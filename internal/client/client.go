package client

import (
	"context"
	"errors"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/crypto"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/paths"
	"github.com/TheMichaelB/metricsnap/internal/secrets"
	"github.com/TheMichaelB/metricsnap/internal/snapshot"
	"github.com/TheMichaelB/metricsnap/internal/storage"
	"github.com/TheMichaelB/metricsnap/internal/transport"
)

// Client provides the high-level API for metricsnap operations.
type Client struct {
	Metrics  *snapshot.Client
	Secrets  *secrets.Acquirer
	Resolver paths.Resolver

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	store     storage.SnapshotStore
	decryptor *crypto.Decryptor
}

// New creates a client from configuration.
func New(ctx context.Context, cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	// Create transport
	transportClient := transport.NewTransport(cfg, logger)

	// Create snapshot store
	store, err := storage.NewStore(ctx, &cfg.Cache, transportClient, logger)
	if err != nil {
		_ = transportClient.Close()
		return nil, err
	}

	// Create secret acquisition
	acquirer, err := secrets.New(cfg, logger)
	if err != nil {
		_ = transportClient.Close()
		return nil, err
	}

	resolver := paths.NewResolver(paths.Options{
		BasePath:     cfg.Cache.BasePath,
		CacheDir:     cfg.Cache.Dir,
		SnapshotFile: cfg.Cache.SnapshotFile,
		DefaultRoot:  cfg.Cache.DefaultRoot,
	})

	decryptor := crypto.NewDecryptor(crypto.NewProvider(), cfg.Crypto.Workers)

	metrics, err := snapshot.NewClient(
		cfg,
		resolver,
		store,
		transportClient,
		decryptor,
		acquirer,
		logger,
	)
	if err != nil {
		_ = acquirer.Close()
		_ = transportClient.Close()
		return nil, err
	}

	return &Client{
		Metrics:   metrics,
		Secrets:   acquirer,
		Resolver:  resolver,
		config:    cfg,
		logger:    logger,
		transport: transportClient,
		store:     store,
		decryptor: decryptor,
	}, nil
}

// SnapshotLocation describes where the snapshot is read from.
func (c *Client) SnapshotLocation() string {
	return c.store.Location(c.Metrics.SnapshotPath())
}

// ForgetSecret drops the retained secret and every derived key.
func (c *Client) ForgetSecret(ctx context.Context) error {
	c.decryptor.ForgetKeys()
	c.Metrics.ClearCache()
	return c.Secrets.Forget(ctx)
}

// Close releases the secret store and the transport.
func (c *Client) Close() error {
	return errors.Join(c.Secrets.Close(), c.transport.Close())
}
