package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheMichaelB/metricsnap/internal/models"
)

// Client modes.
const (
	ModeCache = "cache"
	ModeLive  = "live"
)

// Snapshot backends.
const (
	BackendHTTP = "http"
	BackendFile = "file"
	BackendS3   = "s3"
)

// Secret retention policies.
const (
	RetentionSession    = "session"
	RetentionPersistent = "persistent"
	RetentionNone       = "none"
)

// Config holds all application configuration.
type Config struct {
	// Tenant identity sent to the live endpoints
	Tenant TenantConfig `mapstructure:"tenant" json:"tenant"`

	// Live API communication
	API APIConfig `mapstructure:"api" json:"api"`

	// Snapshot location and in-memory cache behavior
	Cache CacheConfig `mapstructure:"cache" json:"cache"`

	// Secret acquisition
	Secret SecretConfig `mapstructure:"secret" json:"secret"`

	// Decryption
	Crypto CryptoConfig `mapstructure:"crypto" json:"crypto"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`
}

// TenantConfig identifies the tenant.
type TenantConfig struct {
	ID     string `mapstructure:"id" json:"id"`
	Header string `mapstructure:"header" json:"header"`
}

// APIConfig for the live query endpoints.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url" json:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries" json:"max_retries"`
	UserAgent     string        `mapstructure:"user_agent" json:"user_agent"`
	MetricsPath   string        `mapstructure:"metrics_path" json:"metrics_path"`
	DiscoveryPath string        `mapstructure:"discovery_path" json:"discovery_path"`
	EntitiesPath  string        `mapstructure:"entities_path" json:"entities_path"`
	QueryPath     string        `mapstructure:"query_path" json:"query_path"`
}

// CacheConfig for snapshot resolution and freshness.
type CacheConfig struct {
	Mode    string `mapstructure:"mode" json:"mode"`       // cache, live
	Backend string `mapstructure:"backend" json:"backend"` // http, file, s3

	BaseURL   string `mapstructure:"base_url" json:"base_url"`     // Origin for the http backend
	LocalRoot string `mapstructure:"local_root" json:"local_root"` // Root directory for the file backend
	S3Bucket  string `mapstructure:"s3_bucket" json:"s3_bucket"`
	S3Prefix  string `mapstructure:"s3_prefix" json:"s3_prefix"`

	PagePath     string `mapstructure:"page_path" json:"page_path"`
	BasePath     string `mapstructure:"base_path" json:"base_path"` // Injected deployment root
	Dir          string `mapstructure:"dir" json:"dir"`
	SnapshotFile string `mapstructure:"snapshot_file" json:"snapshot_file"`
	DefaultRoot  string `mapstructure:"default_root" json:"default_root"`

	TTL            time.Duration       `mapstructure:"ttl" json:"ttl"`
	ValidateRemote bool                `mapstructure:"validate_remote" json:"validate_remote"`
	BroadestPeriod string              `mapstructure:"broadest_period" json:"broadest_period"`
	Fallbacks      map[string][]string `mapstructure:"fallbacks" json:"fallbacks"`
}

// SecretConfig for passphrase acquisition and retention.
type SecretConfig struct {
	Retention        string `mapstructure:"retention" json:"retention"` // session, persistent, none
	StorePath        string `mapstructure:"store_path" json:"store_path"`
	TokenEnv         string `mapstructure:"token_env" json:"token_env"`
	TokenFile        string `mapstructure:"token_file" json:"token_file"`
	SecretsManagerID string `mapstructure:"secrets_manager_id" json:"secrets_manager_id"`
	Prompt           bool   `mapstructure:"prompt" json:"prompt"`
}

// CryptoConfig for document decryption.
type CryptoConfig struct {
	Workers int `mapstructure:"workers" json:"workers"` // 0 = NumCPU
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
	File   string `mapstructure:"file" json:"file"`     // Log file path (empty = stderr)
	Color  bool   `mapstructure:"color" json:"color"`
}

// DefaultFallbacks maps each period to broader periods, narrowest first.
func DefaultFallbacks() map[string][]string {
	return map[string][]string{
		"today":        {"this_week", "this_month", "this_year"},
		"yesterday":    {"this_week", "this_month", "this_year"},
		"this_week":    {"this_month", "this_year"},
		"last_week":    {"this_month", "this_year"},
		"last_7_days":  {"last_30_days", "this_month", "this_year"},
		"last_30_days": {"this_month", "last_90_days", "this_year"},
		"this_month":   {"this_quarter", "this_year"},
		"last_month":   {"this_quarter", "this_year"},
		"this_quarter": {"this_year"},
		"last_quarter": {"this_year"},
		"last_90_days": {"this_year"},
	}
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	stateDir := ".metricsnap"

	return &Config{
		Tenant: TenantConfig{
			Header: "X-Tenant-ID",
		},
		API: APIConfig{
			BaseURL:       "http://localhost:8000",
			Timeout:       30 * time.Second,
			MaxRetries:    0,
			UserAgent:     "metricsnap/1.0",
			MetricsPath:   "/api/metrics",
			DiscoveryPath: "/api/crema/discovery",
			EntitiesPath:  "/api/crema/entities",
			QueryPath:     "/api/query",
		},
		Cache: CacheConfig{
			Mode:           ModeCache,
			Backend:        BackendHTTP,
			BaseURL:        "http://localhost:8080",
			PagePath:       "/",
			Dir:            "cache",
			SnapshotFile:   "consolidated_cache.json",
			DefaultRoot:    "/",
			TTL:            5 * time.Minute,
			ValidateRemote: true,
			BroadestPeriod: "this_year",
			Fallbacks:      DefaultFallbacks(),
		},
		Secret: SecretConfig{
			Retention: RetentionSession,
			StorePath: filepath.Join(stateDir, "secrets.db"),
			TokenEnv:  "METRICSNAP_ACCESS_TOKEN",
			Prompt:    true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if err := ValidateMode(c.Cache.Mode); err != nil {
		return err
	}

	validBackends := map[string]bool{BackendHTTP: true, BackendFile: true, BackendS3: true}
	if !validBackends[c.Cache.Backend] {
		return &models.ConfigurationError{Field: "cache.backend", Value: c.Cache.Backend, Reason: "must be http, file or s3"}
	}

	if c.Cache.Backend == BackendS3 && c.Cache.S3Bucket == "" {
		return errors.New("cache.s3_bucket is required for the s3 backend")
	}

	if c.Cache.Backend == BackendFile && c.Cache.LocalRoot == "" {
		return errors.New("cache.local_root is required for the file backend")
	}

	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}

	if c.Cache.SnapshotFile == "" {
		return errors.New("cache.snapshot_file is required")
	}

	if c.Cache.Mode == ModeLive && c.API.BaseURL == "" {
		return errors.New("api.base_url is required in live mode")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	validRetention := map[string]bool{RetentionSession: true, RetentionPersistent: true, RetentionNone: true}
	if !validRetention[c.Secret.Retention] {
		return &models.ConfigurationError{Field: "secret.retention", Value: c.Secret.Retention, Reason: "must be session, persistent or none"}
	}

	if c.Secret.Retention == RetentionPersistent && c.Secret.StorePath == "" {
		return errors.New("secret.store_path is required for persistent retention")
	}

	if c.Crypto.Workers < 0 {
		return errors.New("crypto.workers must not be negative")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// ValidateMode rejects anything but cache or live.
func ValidateMode(mode string) error {
	if mode != ModeCache && mode != ModeLive {
		return &models.ConfigurationError{Field: "cache.mode", Value: mode, Reason: "must be cache or live"}
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if c.Secret.Retention == RetentionPersistent {
		dirs = append(dirs, filepath.Dir(c.Secret.StorePath))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
