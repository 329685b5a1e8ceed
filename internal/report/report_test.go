package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/revittco/gatewayobs/internal/cache"
	"github.com/revittco/gatewayobs/internal/store"
)

type fakeSpans struct {
	summaries atomic.Int32
	tops      atomic.Int32
	routes    atomic.Int32
	err       error
}

func (f *fakeSpans) ListSpans(context.Context, string) ([]store.Span, error) { return nil, nil }

func (f *fakeSpans) GetSpanSummary(_ context.Context, after, before time.Time) (*store.SpanSummary, error) {
	f.summaries.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &store.SpanSummary{TotalSpans: 7, TraceCount: 2, AvgDurationMs: 1.5}, nil
}

func (f *fakeSpans) TopOperations(_ context.Context, limit int) ([]store.OperationStats, error) {
	f.tops.Add(1)
	out := []store.OperationStats{{Name: "db.query.select", Count: 5}, {Name: "db.query.insert", Count: 2}}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSpans) RecordRequest(context.Context, *store.GatewayRequest) error { return nil }

func (f *fakeSpans) RouteStats(_ context.Context, after time.Time, limit int) ([]store.RouteStats, error) {
	f.routes.Add(1)
	out := []store.RouteStats{
		{Method: "GET", Route: "/api/v1/traces", Count: 4},
		{Method: "GET", Route: "/api/v1/metrics/top", Count: 1},
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCache(t *testing.T, cfg cache.Config, opts ...cache.Option) *cache.TieredCache {
	t.Helper()
	c := cache.NewTiered(cfg, append([]cache.Option{cache.WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSummary_Cached(t *testing.T) {
	spans := &fakeSpans{}
	r := New(newCache(t, cache.DefaultConfig()), spans, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, err := r.Summary(ctx)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if s.TotalSpans != 7 {
			t.Fatalf("total = %d", s.TotalSpans)
		}
	}
	if n := spans.summaries.Load(); n != 1 {
		t.Fatalf("store calls = %d; want 1", n)
	}

	r.InvalidateSummary(ctx)
	if _, err := r.Summary(ctx); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if n := spans.summaries.Load(); n != 2 {
		t.Fatalf("store calls after invalidate = %d; want 2", n)
	}
}

func TestSummary_ErrorNotCached(t *testing.T) {
	spans := &fakeSpans{err: errors.New("db locked")}
	c := newCache(t, cache.DefaultConfig())
	r := New(c, spans, 0)

	if _, err := r.Summary(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Get(context.Background(), summaryKey); ok {
		t.Fatal("failed load was cached")
	}
}

func TestTopOperations_KeyedByLimit(t *testing.T) {
	spans := &fakeSpans{}
	c := newCache(t, cache.DefaultConfig())
	r := New(c, spans, 0)
	ctx := context.Background()

	one, err := r.TopOperations(ctx, 1)
	if err != nil {
		t.Fatalf("top 1: %v", err)
	}
	two, err := r.TopOperations(ctx, 2)
	if err != nil {
		t.Fatalf("top 2: %v", err)
	}
	if len(one) != 1 || len(two) != 2 {
		t.Fatalf("lens = %d, %d", len(one), len(two))
	}
	r.TopOperations(ctx, 1)
	if n := spans.tops.Load(); n != 2 {
		t.Fatalf("store calls = %d; want 2", n)
	}

	// Invalidating top operations leaves the summary cached.
	if _, err := r.Summary(ctx); err != nil {
		t.Fatalf("summary: %v", err)
	}
	r.InvalidateTop(ctx)
	if keys := c.Stats().CachedKeys; len(keys) != 1 || keys[0] != summaryKey {
		t.Fatalf("cached keys = %v; want only %q", keys, summaryKey)
	}
	r.TopOperations(ctx, 1)
	if n := spans.tops.Load(); n != 3 {
		t.Fatalf("store calls after invalidate = %d; want 3", n)
	}
}

func TestRoutes_CachedAndInvalidated(t *testing.T) {
	spans := &fakeSpans{}
	c := newCache(t, cache.DefaultConfig())
	r := New(c, spans, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		routes, err := r.Routes(ctx, 1)
		if err != nil {
			t.Fatalf("routes: %v", err)
		}
		if len(routes) != 1 || routes[0].Route != "/api/v1/traces" {
			t.Fatalf("routes = %+v", routes)
		}
	}
	if n := spans.routes.Load(); n != 1 {
		t.Fatalf("store calls = %d; want 1", n)
	}

	if _, err := r.TopOperations(ctx, 1); err != nil {
		t.Fatalf("top: %v", err)
	}
	r.InvalidateRoutes(ctx)
	if keys := c.Stats().CachedKeys; len(keys) != 1 || keys[0] != topOpsKeyPrefix+"1" {
		t.Fatalf("cached keys = %v; want only the top-operations entry", keys)
	}
	if _, err := r.Routes(ctx, 1); err != nil {
		t.Fatalf("routes: %v", err)
	}
	if n := spans.routes.Load(); n != 2 {
		t.Fatalf("store calls after invalidate = %d; want 2", n)
	}
}

func TestReporter_CacheDisabled(t *testing.T) {
	spans := &fakeSpans{}
	cfg := cache.DefaultConfig()
	cfg.Enabled = false
	r := New(newCache(t, cfg), spans, 0)

	for i := 0; i < 3; i++ {
		if _, err := r.Summary(context.Background()); err != nil {
			t.Fatalf("summary: %v", err)
		}
	}
	if n := spans.summaries.Load(); n != 3 {
		t.Fatalf("store calls = %d; want 3 with cache disabled", n)
	}
}

func TestReporter_RemoteTierDecodes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cfg := cache.DefaultConfig()
	cfg.UseRemote = true
	cfg.RemoteURL = "redis://" + mr.Addr()

	remoteCache := func() *cache.TieredCache {
		c := cache.NewFromConfig(ctx, cfg, cache.WithLogger(quietLogger()))
		t.Cleanup(func() { _ = c.Close() })
		if c.Backend() != "redis" {
			t.Fatalf("backend = %q; want redis", c.Backend())
		}
		return c
	}

	spans := &fakeSpans{}
	writer := New(remoteCache(), spans, 0)
	if _, err := writer.TopOperations(ctx, 2); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// A second instance sharing the remote tier reads generic JSON back.
	reader := New(remoteCache(), spans, 0)
	got, err := reader.TopOperations(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(got) != 2 || got[0].Name != "db.query.select" || got[0].Count != 5 {
		t.Fatalf("got = %+v", got)
	}
	if n := spans.tops.Load(); n != 1 {
		t.Fatalf("store calls = %d; want 1 (second read served remotely)", n)
	}
}

func TestDecode(t *testing.T) {
	generic := map[string]any{"total_spans": 3.0, "avg_duration_ms": 2.5}
	s, err := decode[*store.SpanSummary](generic)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.TotalSpans != 3 || s.AvgDurationMs != 2.5 {
		t.Fatalf("decoded = %+v", s)
	}
}
