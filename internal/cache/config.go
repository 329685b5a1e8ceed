package cache

import "time"

const (
	// DefaultTTL is how long a metrics aggregate stays fresh.
	DefaultTTL = 10 * time.Second

	// DefaultMaxEntries bounds the local tier.
	DefaultMaxEntries = 1000

	// DefaultRemoteTimeout caps every call to the remote tier.
	DefaultRemoteTimeout = 250 * time.Millisecond

	// DefaultKeyPrefix namespaces keys in the shared remote store.
	DefaultKeyPrefix = "metrics:"
)

// Config holds metrics cache configuration.
type Config struct {
	Enabled       bool          `json:"enabled"`
	TTL           time.Duration `json:"ttl"`
	UseRemote     bool          `json:"use_remote"`
	RemoteURL     string        `json:"-"` // may carry credentials
	RemoteTimeout time.Duration `json:"remote_timeout"`
	MaxEntries    int           `json:"max_entries"`
	KeyPrefix     string        `json:"key_prefix"`
}

// DefaultConfig returns a local-only cache config.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TTL:           DefaultTTL,
		RemoteTimeout: DefaultRemoteTimeout,
		MaxEntries:    DefaultMaxEntries,
		KeyPrefix:     DefaultKeyPrefix,
	}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	return c
}
