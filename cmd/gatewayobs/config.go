package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/revittco/gatewayobs/internal/cache"
	"github.com/revittco/gatewayobs/internal/config"
	"github.com/revittco/gatewayobs/internal/secrets"
	"github.com/revittco/gatewayobs/internal/telemetry"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPAddr   string     // "127.0.0.1:8090"
	DBDSN      string     // SQLite file path
	AgeKeyPath string     // path to age identity file
	ConfigFile string     // path to gatewayobs.yaml
	LogLevel   slog.Level // slog level

	// Overrides for the YAML file; empty means "not set".
	CacheTTL       string // seconds
	CacheUseRemote string
	RedisURL       string
	QueueSize      string
}

// defaultDataPath returns ~/.gatewayobs/<filename>, falling back to
// a CWD-relative path if the home directory can't be resolved.
func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".gatewayobs", filename)
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       envOr("GATEWAYOBS_HTTP_ADDR", "127.0.0.1:8090"),
		DBDSN:          envOr("GATEWAYOBS_DB_DSN", defaultDataPath("gatewayobs.db")),
		AgeKeyPath:     envOr("GATEWAYOBS_AGE_KEY", ""),
		ConfigFile:     envOr("GATEWAYOBS_CONFIG", defaultDataPath("gatewayobs.yaml")),
		LogLevel:       parseLogLevel(envOr("GATEWAYOBS_LOG_LEVEL", "info")),
		CacheTTL:       os.Getenv("GATEWAYOBS_CACHE_TTL"),
		CacheUseRemote: os.Getenv("GATEWAYOBS_CACHE_USE_REMOTE"),
		RedisURL:       os.Getenv("GATEWAYOBS_REDIS_URL"),
		QueueSize:      os.Getenv("GATEWAYOBS_QUEUE_SIZE"),
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// keyPath is the age identity used for encrypted config values. Without
// an explicit path the key lives next to the database.
func (c *Config) keyPath() string {
	if c.AgeKeyPath != "" {
		return c.AgeKeyPath
	}
	return c.DBDSN + ".age"
}

// cacheConfig layers environment overrides on top of the file's cache
// section.
func (c *Config) cacheConfig(fc *config.FileConfig, enc *secrets.AgeEncryptor) (cache.Config, error) {
	cc, err := fc.CacheConfig(enc)
	if err != nil {
		return cc, err
	}
	if c.CacheTTL != "" {
		secs, err := strconv.ParseFloat(c.CacheTTL, 64)
		if err != nil || secs <= 0 {
			return cc, fmt.Errorf("GATEWAYOBS_CACHE_TTL: must be a positive number of seconds, got %q", c.CacheTTL)
		}
		cc.TTL = time.Duration(secs * float64(time.Second))
	}
	if c.CacheUseRemote != "" {
		use, err := strconv.ParseBool(c.CacheUseRemote)
		if err != nil {
			return cc, fmt.Errorf("GATEWAYOBS_CACHE_USE_REMOTE: %w", err)
		}
		cc.UseRemote = use
	}
	if c.RedisURL != "" {
		cc.RemoteURL = c.RedisURL
	}
	return cc, nil
}

// telemetryConfig layers environment overrides on top of the file's
// instrumentation section.
func (c *Config) telemetryConfig(fc *config.FileConfig) (telemetry.Config, error) {
	tc := fc.TelemetryConfig()
	if c.QueueSize != "" {
		n, err := strconv.Atoi(c.QueueSize)
		if err != nil || n <= 0 {
			return tc, fmt.Errorf("GATEWAYOBS_QUEUE_SIZE: invalid size %q", c.QueueSize)
		}
		tc.QueueSize = n
	}
	return tc, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
