package config

import (
	"fmt"
	"os"
	"time"

	"github.com/revittco/gatewayobs/internal/cache"
	"github.com/revittco/gatewayobs/internal/secrets"
	"github.com/revittco/gatewayobs/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the top-level gatewayobs.yaml structure.
type FileConfig struct {
	Cache           CacheSection           `yaml:"cache"`
	Instrumentation InstrumentationSection `yaml:"instrumentation"`
}

// CacheSection configures the metrics cache. Zero values take defaults.
type CacheSection struct {
	Enabled            *bool   `yaml:"enabled"`
	TTLSeconds         float64 `yaml:"ttl_seconds"`
	UseRemote          bool    `yaml:"use_remote"`
	RemoteURL          string  `yaml:"remote_url"`
	RemoteURLEncrypted string  `yaml:"remote_url_encrypted"` // age-armored remote_url
	RemoteTimeoutMs    int     `yaml:"remote_timeout_ms"`
	MaxEntries         int     `yaml:"max_entries"`
}

// InstrumentationSection configures query capture.
type InstrumentationSection struct {
	Enabled          *bool `yaml:"enabled"`
	QueueSize        int   `yaml:"queue_size"`
	DequeueTimeoutMs int   `yaml:"dequeue_timeout_ms"`
	StatementMaxLen  int   `yaml:"statement_max_len"`
	RetentionHours   int   `yaml:"retention_hours"` // 0 keeps spans forever
}

// LoadFile reads, parses, and validates a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// LoadOptional is LoadFile, except a missing file yields an empty config.
func LoadOptional(path string) (*FileConfig, error) {
	if path == "" {
		return &FileConfig{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &FileConfig{}, nil
	}
	return LoadFile(path)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CacheConfig converts the cache section, decrypting remote_url_encrypted
// with enc when no plain remote_url is given.
func (f *FileConfig) CacheConfig(enc *secrets.AgeEncryptor) (cache.Config, error) {
	c := cache.DefaultConfig()
	s := f.Cache
	if s.Enabled != nil {
		c.Enabled = *s.Enabled
	}
	if s.TTLSeconds > 0 {
		c.TTL = time.Duration(s.TTLSeconds * float64(time.Second))
	}
	c.UseRemote = s.UseRemote
	if s.RemoteTimeoutMs > 0 {
		c.RemoteTimeout = time.Duration(s.RemoteTimeoutMs) * time.Millisecond
	}
	if s.MaxEntries > 0 {
		c.MaxEntries = s.MaxEntries
	}

	url, err := secrets.Resolve(enc, s.RemoteURL, s.RemoteURLEncrypted)
	if err != nil {
		return c, fmt.Errorf("cache.remote_url_encrypted: %w", err)
	}
	c.RemoteURL = url
	return c, nil
}

// TelemetryConfig converts the instrumentation section.
func (f *FileConfig) TelemetryConfig() telemetry.Config {
	c := telemetry.DefaultConfig()
	s := f.Instrumentation
	if s.Enabled != nil {
		c.Enabled = *s.Enabled
	}
	if s.QueueSize > 0 {
		c.QueueSize = s.QueueSize
	}
	if s.DequeueTimeoutMs > 0 {
		c.DequeueTimeout = time.Duration(s.DequeueTimeoutMs) * time.Millisecond
	}
	if s.StatementMaxLen > 0 {
		c.StatementMaxLen = s.StatementMaxLen
	}
	return c
}

// Retention returns how long spans are kept, or 0 to keep them forever.
func (f *FileConfig) Retention() time.Duration {
	return time.Duration(f.Instrumentation.RetentionHours) * time.Hour
}
