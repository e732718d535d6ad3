// Package config loads bankline settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the variable pointing at a YAML config file.
const FileEnv = "BANKLINE_CONFIG"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full client configuration.
type Config struct {
	API          APIConfig          `yaml:"api"`
	Retry        RetryConfig        `yaml:"retry"`
	Cache        CacheConfig        `yaml:"cache"`
	Storage      StorageConfig      `yaml:"storage"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Log          LogConfig          `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL string        `env:"BANKLINE_API_URL,default=http://localhost:8080" yaml:"base_url"`
	Token   string        `env:"BANKLINE_TOKEN" yaml:"token"`
	Timeout time.Duration `env:"BANKLINE_API_TIMEOUT,default=30s" yaml:"timeout"`
}

type RetryConfig struct {
	MaxRetries int           `env:"BANKLINE_RETRY_MAX,default=3" yaml:"max_retries"`
	BaseDelay  time.Duration `env:"BANKLINE_RETRY_BASE_DELAY,default=1s" yaml:"base_delay"`
	MaxDelay   time.Duration `env:"BANKLINE_RETRY_MAX_DELAY,default=10s" yaml:"max_delay"`
	Multiplier float64       `env:"BANKLINE_RETRY_MULTIPLIER,default=2" yaml:"multiplier"`
	// Scope is "call" or "request".
	Scope string `env:"BANKLINE_RETRY_SCOPE,default=call" yaml:"scope"`
}

// CacheConfig configures the HTTP response cache.
type CacheConfig struct {
	Enabled  bool          `env:"BANKLINE_CACHE_ENABLED,default=true" yaml:"enabled"`
	TTL      time.Duration `env:"BANKLINE_CACHE_TTL,default=1m" yaml:"ttl"`
	MaxBytes int64         `env:"BANKLINE_CACHE_MAX_BYTES,default=33554432" yaml:"max_bytes"`
}

// StorageConfig selects the local entity cache.
type StorageConfig struct {
	Backend     string `env:"BANKLINE_STORAGE,default=memory" yaml:"backend"`
	PostgresDSN string `env:"BANKLINE_POSTGRES_DSN" yaml:"postgres_dsn"`
	RedisURL    string `env:"BANKLINE_REDIS_URL" yaml:"redis_url"`
	RedisPrefix string `env:"BANKLINE_REDIS_PREFIX,default=bankline" yaml:"redis_prefix"`
}

type SyncConfig struct {
	Schedule    string `env:"BANKLINE_SYNC_SCHEDULE,default=@every 30s" yaml:"schedule"`
	MaxAttempts int    `env:"BANKLINE_SYNC_MAX_ATTEMPTS,default=5" yaml:"max_attempts"`
}

type ConnectivityConfig struct {
	// CheckURL defaults to the API base URL.
	CheckURL string        `env:"BANKLINE_CHECK_URL" yaml:"check_url"`
	Interval time.Duration `env:"BANKLINE_CHECK_INTERVAL,default=15s" yaml:"interval"`
}

type LogConfig struct {
	Level  string `env:"BANKLINE_LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"BANKLINE_LOG_FORMAT,default=text" yaml:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `env:"BANKLINE_METRICS_ADDR" yaml:"addr"`
}

// Load reads .env (if present), decodes BANKLINE_* variables with their
// defaults, overlays the YAML file named by BANKLINE_CONFIG and validates.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return LoadFile(os.Getenv(FileEnv))
}

// LoadDotEnv exports the variables of ./.env that are not already set. A
// missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadFile decodes the environment and overlays path, if non-empty.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid api base url %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config: api timeout must not be negative")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("config: retry max_retries must not be negative")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("config: retry delays must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("config: retry multiplier must be at least 1")
	}
	switch strings.ToLower(c.Retry.Scope) {
	case "call", "request":
	default:
		return fmt.Errorf("config: unknown retry scope %q", c.Retry.Scope)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("config: redis storage requires BANKLINE_REDIS_URL")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres storage requires BANKLINE_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("config: sync max_attempts must be positive")
	}
	return nil
}

// CheckURL returns the connectivity check target.
func (c *Config) CheckURL() string {
	if c.Connectivity.CheckURL != "" {
		return c.Connectivity.CheckURL
	}
	return c.API.BaseURL
}
