// Package report serves span aggregates through the metrics cache.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/revittco/gatewayobs/internal/cache"
	"github.com/revittco/gatewayobs/internal/store"
)

const (
	summaryKey      = "spans"
	topOpsKeyPrefix = "top_operations:"
	routesKeyPrefix = "routes:"

	// DefaultWindow is the span summary look-back.
	DefaultWindow = 24 * time.Hour
)

// Source is the data a Reporter aggregates.
type Source interface {
	store.SpanStore
	store.RequestStore
}

// Reporter computes span and request aggregates, reading through a
// TieredCache so that repeated dashboard polls do not re-run the aggregate
// queries.
type Reporter struct {
	cache  *cache.TieredCache
	src    Source
	window time.Duration
	now    func() time.Time
}

// New creates a Reporter. window <= 0 uses DefaultWindow.
func New(c *cache.TieredCache, src Source, window time.Duration) *Reporter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Reporter{cache: c, src: src, window: window, now: time.Now}
}

// Summary returns span counts and latency over the reporting window.
func (r *Reporter) Summary(ctx context.Context) (*store.SpanSummary, error) {
	return load[*store.SpanSummary](ctx, r, summaryKey, func(ctx context.Context) (any, error) {
		now := r.now().UTC()
		return r.src.GetSpanSummary(ctx, now.Add(-r.window), now)
	})
}

// TopOperations returns the n most frequent span names.
func (r *Reporter) TopOperations(ctx context.Context, n int) ([]store.OperationStats, error) {
	key := topOpsKeyPrefix + strconv.Itoa(n)
	return load[[]store.OperationStats](ctx, r, key, func(ctx context.Context) (any, error) {
		return r.src.TopOperations(ctx, n)
	})
}

// Routes returns the n busiest gateway routes over the reporting window.
func (r *Reporter) Routes(ctx context.Context, n int) ([]store.RouteStats, error) {
	key := routesKeyPrefix + strconv.Itoa(n)
	return load[[]store.RouteStats](ctx, r, key, func(ctx context.Context) (any, error) {
		return r.src.RouteStats(ctx, r.now().UTC().Add(-r.window), n)
	})
}

// InvalidateRoutes drops every cached route ranking regardless of n.
func (r *Reporter) InvalidateRoutes(ctx context.Context) {
	if r.cache.Enabled() {
		r.cache.InvalidatePrefix(ctx, routesKeyPrefix)
	}
}

// InvalidateTop drops every cached top-operations result regardless of n.
func (r *Reporter) InvalidateTop(ctx context.Context) {
	if r.cache.Enabled() {
		r.cache.InvalidatePrefix(ctx, topOpsKeyPrefix)
	}
}

// InvalidateSummary drops the cached summary.
func (r *Reporter) InvalidateSummary(ctx context.Context) {
	if r.cache.Enabled() {
		r.cache.Invalidate(ctx, summaryKey)
	}
}

func load[T any](ctx context.Context, r *Reporter, key string, fn func(context.Context) (any, error)) (T, error) {
	var zero T
	if !r.cache.Enabled() {
		v, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		return decode[T](v)
	}
	v, err := r.cache.GetOrLoad(ctx, key, fn)
	if err != nil {
		return zero, err
	}
	return decode[T](v)
}

// decode converts a cached value to T. Values that came back from the
// remote tier are generic JSON and are re-decoded.
func decode[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("re-encode cached value: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode cached value: %w", err)
	}
	return out, nil
}
