package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

// LocalStore reads snapshots from a directory that mirrors the web root.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	// Security settings
	maxPathLength int
	maxFileSize   int64
}

// NewLocalStore creates a local file store.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	// Resolve absolute path
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory is not a directory: %s", absPath)
	}

	return &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		maxPathLength: 4096,
		maxFileSize:   256 * 1024 * 1024, // 256MB default
	}, nil
}

// SetMaxFileSize sets the maximum file size limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// Read retrieves file contents.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, &models.FetchError{URL: path, Err: err}
	}

	file, err := os.Open(safePath)
	if err != nil {
		return nil, &models.FetchError{URL: safePath, Err: err}
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxFileSize+1))
	if err != nil {
		return nil, &models.FetchError{URL: safePath, Err: fmt.Errorf("read file: %w", err)}
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, &models.FetchError{URL: safePath, Err: fmt.Errorf("file too large (max: %d bytes)", s.maxFileSize)}
	}

	s.logger.WithFields(map[string]interface{}{
		"path": safePath,
		"size": len(data),
	}).Debug("Read snapshot")

	return data, nil
}

// Modified returns the file's modification time.
func (s *LocalStore) Modified(ctx context.Context, path string) (time.Time, error) {
	info, err := s.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime, nil
}

// Stat returns file information.
func (s *LocalStore) Stat(path string) (FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return FileInfo{}, &models.FetchError{URL: path, Err: err}
	}

	info, err := os.Stat(safePath)
	if err != nil {
		return FileInfo{}, &models.FetchError{URL: safePath, Err: err}
	}

	return FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Location returns the filesystem path for path.
func (s *LocalStore) Location(path string) string {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return path
	}
	return safePath
}

// sanitizePath validates and normalizes a file path.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	// Check for null bytes
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	// Clean path (remove .., ., etc)
	cleaned := filepath.Clean(filepath.FromSlash(path))

	// Check for directory traversal
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("invalid path: contains '..'")
		}
	}

	// Web paths are rooted at the base directory
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	fullPath := filepath.Join(s.baseDir, cleaned)

	// Verify it's under base directory
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) && fullPath != s.baseDir {
		return "", fmt.Errorf("path escapes base directory")
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("path too long: %d characters (max: %d)", len(fullPath), s.maxPathLength)
	}

	return fullPath, nil
}
