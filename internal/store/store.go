package store

import (
	"context"
	"time"
)

// Store is the composite interface for observability data access.
type Store interface {
	TraceStore
	SpanStore
	RequestStore
	Ping(ctx context.Context) error
	Close() error
}

// TraceStore manages trace records.
type TraceStore interface {
	CreateTrace(ctx context.Context, t *Trace) error
	EndTrace(ctx context.Context, id, status string, endedAt time.Time) error
	GetTrace(ctx context.Context, id string) (*Trace, error)
	ListTraces(ctx context.Context, limit int) ([]Trace, error)
	PruneTraces(ctx context.Context, before time.Time) (int, error)
}

// SpanStore reads persisted spans. Spans are written through the span
// sink session, not through this interface.
type SpanStore interface {
	ListSpans(ctx context.Context, traceID string) ([]Span, error)
	GetSpanSummary(ctx context.Context, after, before time.Time) (*SpanSummary, error)
	TopOperations(ctx context.Context, limit int) ([]OperationStats, error)
}

// RequestStore records the gateway's own API requests. Its writes go
// through the instrumented pool, so each recorded request also yields a
// span on the request's trace.
type RequestStore interface {
	RecordRequest(ctx context.Context, req *GatewayRequest) error
	RouteStats(ctx context.Context, after time.Time, limit int) ([]RouteStats, error)
}
