package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// NewFromConfig builds a TieredCache from configuration. Any problem setting
// up the remote tier (bad URL, unreachable server) is logged and the cache
// is returned local-only for its whole lifetime; this never fails.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) *TieredCache {
	cfg = cfg.withDefaults()
	if !cfg.UseRemote || cfg.RemoteURL == "" {
		if cfg.UseRemote {
			slog.Warn("remote metrics cache requested without a URL, using local cache")
		}
		return NewTiered(cfg, opts...)
	}

	safeURL := SanitizeURL(cfg.RemoteURL)
	backend, err := DialRedis(cfg.RemoteURL, cfg.RemoteTimeout)
	if err != nil {
		slog.Warn("failed to initialize remote metrics cache, using local cache",
			"url", safeURL, "error", err)
		return NewTiered(cfg, opts...)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.RemoteTimeout)
	defer cancel()
	if err := backend.Ping(pingCtx); err != nil {
		_ = backend.Close()
		slog.Warn("remote metrics cache unreachable, using local cache",
			"url", safeURL, "error", err)
		return NewTiered(cfg, opts...)
	}

	slog.Info("metrics cache configured with remote backend", "url", safeURL)
	return NewTiered(cfg, append(opts, WithRemote(backend))...)
}

// SanitizeURL strips credentials, path and query from a connection URL so it
// can be logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid>"
	}
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s://%s:%s", u.Scheme, u.Hostname(), port)
}
