package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/transport"
)

// SnapshotStore reads published snapshot files. Stores never write; the
// snapshot is produced elsewhere.
type SnapshotStore interface {
	// Read retrieves the file, bypassing any intermediary cache.
	Read(ctx context.Context, path string) ([]byte, error)

	// Modified returns the file's last modification time. The zero time
	// means the backend could not report one.
	Modified(ctx context.Context, path string) (time.Time, error)

	// Location describes where path is read from, for logs and errors.
	Location(path string) string
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// NewStore builds the store selected by cache.backend.
func NewStore(ctx context.Context, cfg *config.CacheConfig, tr transport.Transport, logger *events.Logger) (SnapshotStore, error) {
	switch cfg.Backend {
	case config.BackendHTTP, "":
		return NewHTTPStore(cfg.BaseURL, tr, logger), nil
	case config.BackendFile:
		return NewLocalStore(cfg.LocalRoot, logger)
	case config.BackendS3:
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix, logger)
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %s", cfg.Backend)
	}
}
