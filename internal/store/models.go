package store

import (
	"encoding/json"
	"time"
)

// Trace statuses.
const (
	TraceActive = "active"
	TraceOK     = "ok"
	TraceError  = "error"
)

// Trace is one request-scoped unit of work that spans are recorded against.
type Trace struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	DurationMs *float64        `json:"duration_ms,omitempty"`
	SpanCount  int             `json:"span_count"`
}

// Span is a persisted span.
type Span struct {
	ID           string          `json:"id"`
	TraceID      string          `json:"trace_id"`
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	ResourceType string          `json:"resource_type"`
	ResourceName string          `json:"resource_name"`
	Status       string          `json:"status"`
	Attributes   json.RawMessage `json:"attributes,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
	DurationMs   *float64        `json:"duration_ms,omitempty"`
}

// SpanSummary holds aggregate statistics over spans in a time window.
type SpanSummary struct {
	TotalSpans    int     `json:"total_spans"`
	TraceCount    int     `json:"trace_count"`
	ErrorCount    int     `json:"error_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
}

// OperationStats aggregates spans sharing a name.
type OperationStats struct {
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	ErrorCount    int     `json:"error_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

// GatewayRequest is one API request served by the gateway.
type GatewayRequest struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Route      string    `json:"route"`
	Status     int       `json:"status"`
	DurationMs float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RouteStats aggregates gateway requests sharing a method and route.
type RouteStats struct {
	Method        string  `json:"method"`
	Route         string  `json:"route"`
	Count         int     `json:"count"`
	ErrorCount    int     `json:"error_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}
