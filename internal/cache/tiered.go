package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// TieredCache serves metrics aggregates from a local tier and an optional
// shared remote tier. Remote failures are logged and absorbed; the local
// tier always stays warm so it can answer when the remote tier cannot.
type TieredCache struct {
	cfg     Config
	local   *Cache[string, any]
	remote  RemoteBackend
	stats   counters
	metrics *Metrics
	logger  *slog.Logger
	loads   singleflight.Group

	localOnlyWarned atomic.Bool
}

// Option configures a TieredCache.
type Option func(*TieredCache)

// WithRemote attaches a shared remote tier.
func WithRemote(r RemoteBackend) Option {
	return func(c *TieredCache) { c.remote = r }
}

// WithMetrics exports hit/miss counters.
func WithMetrics(m *Metrics) Option {
	return func(c *TieredCache) { c.metrics = m }
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *TieredCache) { c.logger = l }
}

// NewTiered creates a tiered cache. Without WithRemote it is local-only.
func NewTiered(cfg Config, opts ...Option) *TieredCache {
	cfg = cfg.withDefaults()
	c := &TieredCache{
		cfg:    cfg,
		local:  New[string, any](cfg.MaxEntries, cfg.TTL),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.remote != nil {
		c.logger.Info("metrics cache initialized", "backend", backendRedis, "ttl", cfg.TTL)
	} else {
		c.logger.Info("metrics cache initialized", "backend", backendLocal, "ttl", cfg.TTL)
	}
	return c
}

// Enabled reports whether callers should read through the cache at all.
func (c *TieredCache) Enabled() bool { return c.cfg.Enabled }

// Backend returns "redis" when a remote tier is active, else "local".
func (c *TieredCache) Backend() string {
	if c.remote != nil {
		return backendRedis
	}
	return backendLocal
}

// Get returns the cached value for key. The remote tier is consulted first
// when present; if it is unavailable the local tier answers instead.
func (c *TieredCache) Get(ctx context.Context, key string) (any, bool) {
	if c.remote != nil {
		res := c.remoteGet(ctx, key)
		switch res.outcome {
		case remoteHit:
			c.recordHit(backendRedis, &c.stats.remoteHits)
			c.logger.Debug("metrics cache hit", "cache_key", key, "cache_backend", backendRedis)
			return res.value, true
		case remoteMiss:
			c.recordMiss(backendRedis, &c.stats.remoteMisses)
			c.logger.Debug("metrics cache miss", "cache_key", key, "cache_backend", backendRedis)
			return nil, false
		case remoteUnavailable:
			c.logger.Warn("remote cache get failed, falling back to local cache",
				"cache_key", key, "error", res.err)
		}
	}
	return c.localGet(key)
}

// GetLocal reads only the local tier. With a remote tier active this can
// return stale or missing data that the remote tier holds; a warning is
// logged the first time that happens.
func (c *TieredCache) GetLocal(key string) (any, bool) {
	c.warnLocalOnly()
	return c.localGet(key)
}

// Set writes value to the remote tier (when present) and always to the
// local tier.
func (c *TieredCache) Set(ctx context.Context, key string, value any) {
	if c.remote != nil {
		if err := c.remoteSet(ctx, key, value); err != nil {
			c.logger.Warn("remote cache set failed, keeping local copy only",
				"cache_key", key, "error", err)
		} else {
			c.logger.Debug("metrics cache set", "cache_key", key,
				"cache_backend", backendRedis, "ttl", c.cfg.TTL)
		}
	}
	c.local.Set(key, value)
}

// SetLocal writes only the local tier.
func (c *TieredCache) SetLocal(key string, value any) {
	c.warnLocalOnly()
	c.local.Set(key, value)
}

// Invalidate removes key from both tiers. The local delete runs even when
// the remote delete fails.
func (c *TieredCache) Invalidate(ctx context.Context, key string) {
	if c.remote != nil {
		err := c.withRemote(ctx, func(ctx context.Context) error {
			return c.remote.Delete(ctx, c.remoteKey(key))
		})
		if err != nil {
			c.logger.Warn("remote cache invalidation failed", "cache_key", key, "error", err)
		}
	}
	c.local.Invalidate(key)
}

// InvalidateAll removes every key from both tiers.
func (c *TieredCache) InvalidateAll(ctx context.Context) {
	if c.remote != nil {
		n, err := c.remoteDeleteMatching(ctx, c.remotePattern(""))
		if err != nil {
			c.logger.Warn("remote cache invalidation failed", "error", err)
		} else if n > 0 {
			c.logger.Debug("invalidated remote cache entries", "count", n)
		}
	}
	c.local.Flush()
}

// InvalidatePrefix removes all keys starting with prefix from both tiers.
func (c *TieredCache) InvalidatePrefix(ctx context.Context, prefix string) {
	if c.remote != nil {
		n, err := c.remoteDeleteMatching(ctx, c.remotePattern(prefix))
		if err != nil {
			c.logger.Warn("remote cache prefix invalidation failed", "prefix", prefix, "error", err)
		} else if n > 0 {
			c.logger.Debug("invalidated remote cache entries", "prefix", prefix, "count", n)
		}
	}
	c.invalidateLocalPrefix(prefix)
}

// InvalidateLocal removes key from the local tier only.
func (c *TieredCache) InvalidateLocal(key string) {
	c.warnLocalOnly()
	c.local.Invalidate(key)
}

// InvalidateLocalPrefix removes prefixed keys from the local tier only.
func (c *TieredCache) InvalidateLocalPrefix(prefix string) {
	c.warnLocalOnly()
	c.invalidateLocalPrefix(prefix)
}

// GetOrLoad returns the cached value for key or computes it with load.
// Concurrent misses for the same key share a single load. The shared load
// is not cancelled by any one caller; a caller whose ctx ends stops
// waiting and gets ctx.Err().
func (c *TieredCache) GetOrLoad(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(loadCtx, key, v)
		return v, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of counters, hit rates and live keys.
func (c *TieredCache) Stats() Stats {
	s := Stats{
		HitCount:        c.stats.totalHits.Load(),
		MissCount:       c.stats.totalMisses.Load(),
		LocalHitCount:   c.stats.localHits.Load(),
		LocalMissCount:  c.stats.localMisses.Load(),
		RemoteHitCount:  c.stats.remoteHits.Load(),
		RemoteMissCount: c.stats.remoteMisses.Load(),
		Evictions:       c.local.Evictions(),
		CachedKeys:      c.local.Keys(),
		TTLSeconds:      c.cfg.TTL.Seconds(),
		Backend:         c.Backend(),
	}
	s.HitRate = hitRate(s.HitCount, s.MissCount)
	s.LocalHitRate = hitRate(s.LocalHitCount, s.LocalMissCount)
	s.RemoteHitRate = hitRate(s.RemoteHitCount, s.RemoteMissCount)
	sort.Strings(s.CachedKeys)
	return s
}

// ResetStats zeroes the hit/miss counters. Cached values are kept.
func (c *TieredCache) ResetStats() {
	c.stats.reset()
}

// Close releases the remote client, if any.
func (c *TieredCache) Close() error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Close()
}

func (c *TieredCache) localGet(key string) (any, bool) {
	if v, ok := c.local.Get(key); ok {
		c.recordHit(backendLocal, &c.stats.localHits)
		c.logger.Debug("metrics cache hit", "cache_key", key, "cache_backend", backendLocal)
		return v, true
	}
	c.recordMiss(backendLocal, &c.stats.localMisses)
	c.logger.Debug("metrics cache miss", "cache_key", key, "cache_backend", backendLocal)
	return nil, false
}

func (c *TieredCache) invalidateLocalPrefix(prefix string) {
	n := c.local.InvalidateFunc(func(k string) bool {
		return strings.HasPrefix(k, prefix)
	})
	if n > 0 {
		c.logger.Debug("invalidated local cache entries", "prefix", prefix, "count", n)
	}
}

func (c *TieredCache) remoteGet(ctx context.Context, key string) remoteResult {
	var data []byte
	err := c.withRemote(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.remote.Get(ctx, c.remoteKey(key))
		return err
	})
	switch {
	case errors.Is(err, ErrRemoteMiss):
		return remoteResult{outcome: remoteMiss}
	case err != nil:
		return remoteResult{outcome: remoteUnavailable, err: err}
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return remoteResult{outcome: remoteUnavailable, err: fmt.Errorf("decode %s: %w", key, err)}
	}
	return remoteResult{outcome: remoteHit, value: v}
}

func (c *TieredCache) remoteSet(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.withRemote(ctx, func(ctx context.Context) error {
		return c.remote.SetWithTTL(ctx, c.remoteKey(key), c.cfg.TTL, data)
	})
}

func (c *TieredCache) remoteDeleteMatching(ctx context.Context, pattern string) (int, error) {
	var n int
	err := c.withRemote(ctx, func(ctx context.Context) error {
		keys, err := c.remote.ScanKeys(ctx, pattern)
		if err != nil {
			return err
		}
		n = len(keys)
		return c.remote.Delete(ctx, keys...)
	})
	return n, err
}

// withRemote bounds a remote call by the configured timeout.
func (c *TieredCache) withRemote(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RemoteTimeout)
	defer cancel()
	return fn(ctx)
}

func (c *TieredCache) remoteKey(key string) string {
	return c.cfg.KeyPrefix + key
}

// remotePattern matches every remote key that starts with prefix.
func (c *TieredCache) remotePattern(prefix string) string {
	return globEscape(c.remoteKey(prefix)) + "*"
}

func (c *TieredCache) warnLocalOnly() {
	if c.remote != nil && c.localOnlyWarned.CompareAndSwap(false, true) {
		c.logger.Warn("local-only cache access while remote backend is active; " +
			"only the local tier is used. This warning is shown once.")
	}
}

func (c *TieredCache) recordHit(backend string, tier *atomic.Int64) {
	c.stats.totalHits.Add(1)
	tier.Add(1)
	c.metrics.hit(backend)
}

func (c *TieredCache) recordMiss(backend string, tier *atomic.Int64) {
	c.stats.totalMisses.Add(1)
	tier.Add(1)
	c.metrics.miss(backend)
}

// globEscape quotes the characters Redis MATCH treats specially.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
