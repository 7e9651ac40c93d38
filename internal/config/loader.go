package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from file and environment.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "METRICSNAP",
	}
}

// Load reads configuration from defaults, file and environment, in that
// order of precedence (later wins).
func (l *Loader) Load() (*Config, error) {
	v := l.newViper()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		v.SetConfigName("metricsnap")
		for _, dir := range l.defaultDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Cache.Mode = strings.ToLower(cfg.Cache.Mode)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFile reports the file that Load would read, if any.
func (l *Loader) ConfigFile() string {
	return l.configPath
}

func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// defaultDirs returns default config file locations.
func (l *Loader) defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "metricsnap"),
			filepath.Join(homeDir, ".metricsnap"),
		)
	}

	return dirs
}

// setDefaults registers every key so environment variables can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("tenant.id", cfg.Tenant.ID)
	v.SetDefault("tenant.header", cfg.Tenant.Header)

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout.String())
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.metrics_path", cfg.API.MetricsPath)
	v.SetDefault("api.discovery_path", cfg.API.DiscoveryPath)
	v.SetDefault("api.entities_path", cfg.API.EntitiesPath)
	v.SetDefault("api.query_path", cfg.API.QueryPath)

	v.SetDefault("cache.mode", cfg.Cache.Mode)
	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.base_url", cfg.Cache.BaseURL)
	v.SetDefault("cache.local_root", cfg.Cache.LocalRoot)
	v.SetDefault("cache.s3_bucket", cfg.Cache.S3Bucket)
	v.SetDefault("cache.s3_prefix", cfg.Cache.S3Prefix)
	v.SetDefault("cache.page_path", cfg.Cache.PagePath)
	v.SetDefault("cache.base_path", cfg.Cache.BasePath)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.snapshot_file", cfg.Cache.SnapshotFile)
	v.SetDefault("cache.default_root", cfg.Cache.DefaultRoot)
	v.SetDefault("cache.ttl", cfg.Cache.TTL.String())
	v.SetDefault("cache.validate_remote", cfg.Cache.ValidateRemote)
	v.SetDefault("cache.broadest_period", cfg.Cache.BroadestPeriod)
	v.SetDefault("cache.fallbacks", cfg.Cache.Fallbacks)

	v.SetDefault("secret.retention", cfg.Secret.Retention)
	v.SetDefault("secret.store_path", cfg.Secret.StorePath)
	v.SetDefault("secret.token_env", cfg.Secret.TokenEnv)
	v.SetDefault("secret.token_file", cfg.Secret.TokenFile)
	v.SetDefault("secret.secrets_manager_id", cfg.Secret.SecretsManagerID)
	v.SetDefault("secret.prompt", cfg.Secret.Prompt)

	v.SetDefault("crypto.workers", cfg.Crypto.Workers)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)
}

// SaveExample writes an example config file. The format follows the file
// extension (yaml, json or toml).
func SaveExample(path string) error {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return os.Chmod(path, 0600)
}
