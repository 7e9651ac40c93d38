package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/config"
)

// cacheEntry is one in-memory value and the time it was stored.
type cacheEntry struct {
	value     any
	createdAt time.Time
}

// IsCacheValid reports whether period would be served from memory.
func (c *Client) IsCacheValid(ctx context.Context, period string) bool {
	_, ok := c.check(ctx, metricsKeyPrefix+period)
	return ok
}

// ClearCache drops every in-memory entry.
func (c *Client) ClearCache() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()

	c.logger.WithField("entries", n).Debug("Cleared cache")
}

// CachedPeriods lists the periods currently held in memory.
func (c *Client) CachedPeriods() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var periods []string
	for key := range c.entries {
		if period, ok := strings.CutPrefix(key, metricsKeyPrefix); ok {
			periods = append(periods, period)
		}
	}
	return periods
}

// lookup returns a valid entry's value and evicts an invalid one.
func (c *Client) lookup(ctx context.Context, key string) (any, bool) {
	entry, ok := c.check(ctx, key)
	if ok {
		return entry.value, true
	}
	if !entry.createdAt.IsZero() {
		c.evict(key, entry.createdAt)
	}
	return nil, false
}

// check validates an entry by age and, in cache mode, against the remote
// file's modification time. A failed remote check keeps the entry.
func (c *Client) check(ctx context.Context, key string) (cacheEntry, bool) {
	c.mu.RLock()
	entry, found := c.entries[key]
	mode := c.mode
	now := c.now()
	c.mu.RUnlock()

	if !found {
		return cacheEntry{}, false
	}

	logger := c.logger.WithField("key", key)

	ttl := c.cfg.Cache.TTL
	if ttl <= 0 || now.Sub(entry.createdAt) >= ttl {
		logger.Debug("Cache entry expired")
		return entry, false
	}

	if mode == config.ModeCache && c.cfg.Cache.ValidateRemote {
		location := c.SnapshotPath()
		modified, err := c.snapshots.Modified(ctx, location)
		if err != nil {
			logger.WithError(err).Warn("Could not check snapshot modification time")
			return entry, true
		}
		if modified.After(entry.createdAt) {
			logger.WithField("modified", modified).Debug("Snapshot changed since entry was cached")
			return entry, false
		}
	}

	return entry, true
}

// remember stores value stamped with the current time.
func (c *Client) remember(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, createdAt: c.now()}
}

// evict removes key unless it was replaced after createdAt.
func (c *Client) evict(key string, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok && entry.createdAt.Equal(createdAt) {
		delete(c.entries, key)
	}
}
