package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError holds all validation failures for a config file.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

// validate checks the parsed config for correctness.
func validate(cfg *FileConfig) error {
	var errs []string

	c := cfg.Cache
	errs = appendNonNegative(errs, "cache.ttl_seconds", c.TTLSeconds)
	errs = appendNonNegative(errs, "cache.remote_timeout_ms", float64(c.RemoteTimeoutMs))
	errs = appendNonNegative(errs, "cache.max_entries", float64(c.MaxEntries))
	if c.RemoteURL != "" && c.RemoteURLEncrypted != "" {
		errs = append(errs, "cache: set remote_url or remote_url_encrypted, not both")
	}
	if err := validateRedisURL(c.RemoteURL); err != nil {
		errs = append(errs, fmt.Sprintf("cache.remote_url: %v", err))
	}

	in := cfg.Instrumentation
	errs = appendNonNegative(errs, "instrumentation.queue_size", float64(in.QueueSize))
	errs = appendNonNegative(errs, "instrumentation.dequeue_timeout_ms", float64(in.DequeueTimeoutMs))
	errs = appendNonNegative(errs, "instrumentation.statement_max_len", float64(in.StatementMaxLen))
	errs = appendNonNegative(errs, "instrumentation.retention_hours", float64(in.RetentionHours))

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func appendNonNegative(errs []string, field string, v float64) []string {
	if v < 0 {
		return append(errs, fmt.Sprintf("%s: must not be negative", field))
	}
	return errs
}

func validateRedisURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "redis", "rediss", "unix":
		return nil
	default:
		return fmt.Errorf("unsupported scheme %q (must be redis, rediss, or unix)", u.Scheme)
	}
}
