// Package snapshot serves period-scoped metrics and discovery data, either
// from the consolidated snapshot file or from the live query endpoints.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
	"github.com/TheMichaelB/metricsnap/internal/paths"
	"github.com/TheMichaelB/metricsnap/internal/storage"
	"github.com/TheMichaelB/metricsnap/internal/transport"
)

// Cache keys.
const (
	metricsKeyPrefix = "metrics_"
	cremaKey         = "crema_data"
)

// SecretProvider hands out the document passphrase. ok is false when no
// secret is available, including when the user declined to enter one.
type SecretProvider interface {
	Acquire(ctx context.Context) (secret string, ok bool, err error)
	Forget(ctx context.Context) error
}

// Decryptor turns an encrypted document into plaintext.
type Decryptor interface {
	DecryptDocument(ctx context.Context, doc models.Value, secret string) (models.Value, error)
	ForgetKeys()
}

// Client is the time-range metrics client.
type Client struct {
	cfg       *config.Config
	resolver  paths.Resolver
	snapshots storage.SnapshotStore
	transport transport.Transport
	decryptor Decryptor
	secrets   SecretProvider
	logger    *events.Logger

	now func() time.Time

	mu      sync.RWMutex
	mode    string
	entries map[string]cacheEntry
}

// NewClient creates a client in the configured mode. An invalid mode is a
// *models.ConfigurationError.
func NewClient(
	cfg *config.Config,
	resolver paths.Resolver,
	snapshots storage.SnapshotStore,
	transport transport.Transport,
	decryptor Decryptor,
	secrets SecretProvider,
	logger *events.Logger,
) (*Client, error) {
	if err := config.ValidateMode(cfg.Cache.Mode); err != nil {
		return nil, err
	}

	return &Client{
		cfg:       cfg,
		resolver:  resolver,
		snapshots: snapshots,
		transport: transport,
		decryptor: decryptor,
		secrets:   secrets,
		logger:    logger.WithField("component", "snapshot"),
		now:       time.Now,
		mode:      cfg.Cache.Mode,
		entries:   make(map[string]cacheEntry),
	}, nil
}

// SetClock replaces the time source.
func (c *Client) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// GetMode returns the current mode.
func (c *Client) GetMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode switches between cache and live mode and drops every cached entry.
func (c *Client) SetMode(mode string) error {
	if err := config.ValidateMode(mode); err != nil {
		return err
	}

	c.mu.Lock()
	previous := c.mode
	c.mode = mode
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"from": previous,
		"to":   mode,
	}).Info("Switched mode")

	return nil
}

// SnapshotPath returns the resolved snapshot location.
func (c *Client) SnapshotPath() string {
	return c.resolver.Resolve(c.cfg.Cache.PagePath)
}

// GetMetrics returns the metrics for period. The mapping is a copy; changing
// it does not affect the cache.
func (c *Client) GetMetrics(ctx context.Context, period string) (models.Metrics, error) {
	rec, err := c.GetPeriodRecord(ctx, period)
	if err != nil {
		return nil, err
	}
	return rec.Metrics, nil
}

// GetPeriodRecord returns the full record for period. In cache mode an absent
// period is served by its fallback chain; the result is cached under the
// requested period.
func (c *Client) GetPeriodRecord(ctx context.Context, period string) (*models.PeriodRecord, error) {
	if period == "" {
		return nil, &models.PeriodNotFoundError{Period: period}
	}

	ctx = events.WithPeriod(ctx, period)
	key := metricsKeyPrefix + period

	if value, ok := c.lookup(ctx, key); ok {
		c.logger.WithField("period", period).Debug("Cache hit")
		return value.(*models.PeriodRecord).Clone(), nil
	}

	var (
		rec *models.PeriodRecord
		err error
	)
	if c.GetMode() == config.ModeLive {
		rec, err = c.liveRecord(ctx, period)
	} else {
		rec, err = c.snapshotRecord(ctx, period)
	}
	if err != nil {
		return nil, err
	}

	c.remember(key, rec)
	return rec.Clone(), nil
}

// snapshotRecord loads the snapshot and applies the fallback chain.
func (c *Client) snapshotRecord(ctx context.Context, period string) (*models.PeriodRecord, error) {
	snap, err := c.loadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	rec, matched, err := resolvePeriod(snap, period, c.cfg.Cache.Fallbacks, c.cfg.Cache.BroadestPeriod)
	if err != nil {
		return nil, err
	}

	if matched != period {
		c.logger.WithFields(map[string]interface{}{
			"period":  period,
			"matched": matched,
		}).Info("Using fallback period")
	}

	return rec, nil
}

// loadSnapshot reads, parses and, when needed, decrypts the snapshot.
func (c *Client) loadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	location := c.SnapshotPath()

	data, err := c.snapshots.Read(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	doc, err := models.ParseValue(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidSnapshot, c.snapshots.Location(location), err)
	}

	info, err := models.ReadEncryptionInfo(doc)
	if err != nil {
		return nil, err
	}

	if info != nil {
		doc, err = c.decrypt(ctx, doc)
		if err != nil {
			return nil, err
		}
	} else if models.HasEnvelopes(doc) {
		return nil, fmt.Errorf("%w: encrypted fields without _encryption metadata", models.ErrInvalidSnapshot)
	}

	snap, err := models.DecodeSnapshot(doc)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"location":  c.snapshots.Location(location),
		"periods":   len(snap.Metrics),
		"encrypted": info != nil,
	}).Debug("Loaded snapshot")

	return snap, nil
}

// decrypt acquires the secret and decrypts doc. On a decryption failure the
// retained secret and derived keys are dropped so the next call asks again.
func (c *Client) decrypt(ctx context.Context, doc models.Value) (models.Value, error) {
	var (
		secret string
		ok     bool
		err    error
	)
	if c.secrets != nil {
		secret, ok, err = c.secrets.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire secret: %w", err)
		}
	}
	if !ok {
		return nil, &models.DecryptionError{Reason: "no secret available", Err: models.ErrNoSecret}
	}

	plain, err := c.decryptor.DecryptDocument(ctx, doc, secret)
	if err != nil {
		var decErr *models.DecryptionError
		if errors.As(err, &decErr) {
			c.logger.WithError(err).Warn("Snapshot decryption failed")
			c.decryptor.ForgetKeys()
			if ferr := c.secrets.Forget(ctx); ferr != nil {
				c.logger.WithError(ferr).Warn("Failed to forget secret")
			}
		}
		return nil, err
	}

	return plain, nil
}
