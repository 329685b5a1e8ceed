package telemetry

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by a SinkSession used after Commit or Close.
var ErrSessionClosed = errors.New("sink session closed")

// SpanStart describes a span as it is opened in the sink.
type SpanStart struct {
	TraceID      string
	Name         string
	Kind         string
	ResourceType string
	ResourceName string
	Attributes   map[string]any
}

// SpanSink persists spans. Each span is written inside its own session.
type SpanSink interface {
	Begin(ctx context.Context) (SinkSession, error)
}

// SinkSession is a scoped unit of persistence. Close must be safe to call
// after Commit and discards uncommitted work.
type SinkSession interface {
	StartSpan(ctx context.Context, s SpanStart) (string, error)
	EndSpan(ctx context.Context, spanID, status string, attrs map[string]any) error
	SetDuration(ctx context.Context, spanID string, durationMs float64) error
	Commit() error
	Close() error
}
