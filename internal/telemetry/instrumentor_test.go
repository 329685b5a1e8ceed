package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances by step on every call.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func newTestInstrumentor(t *testing.T, capacity int, opts ...Option) (*Instrumentor, *Queue) {
	t.Helper()
	q := NewQueue(capacity, nil)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: 25 * time.Millisecond}
	opts = append([]Option{WithLogger(quietLogger()), withClock(clock.now)}, opts...)
	return NewInstrumentor(DefaultConfig(), q, opts...), q
}

func drainOne(t *testing.T, q *Queue) SpanRecord {
	t.Helper()
	s, ok := q.Dequeue(context.Background(), 100*time.Millisecond)
	if !ok {
		t.Fatal("expected a span in the queue")
	}
	q.Done()
	return s
}

func int64p(n int64) *int64 { return &n }

func TestInstrumentor_BuildsSpan(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	in.Before(ctx, "conn-1", "  select * from tools where id = ?", []any{1}, false)
	in.After(ctx, "conn-1", QueryResult{RowCount: int64p(3)})

	s := drainOne(t, q)
	if s.TraceID != "trace-abc" {
		t.Errorf("trace = %q", s.TraceID)
	}
	if s.Name != "db.query.select" {
		t.Errorf("name = %q", s.Name)
	}
	if s.Kind != KindClient || s.ResourceType != ResourceDatabase || s.ResourceName != "SELECT" {
		t.Errorf("kind/resource = %q/%q/%q", s.Kind, s.ResourceType, s.ResourceName)
	}
	if s.Status != StatusOK {
		t.Errorf("status = %q", s.Status)
	}
	if s.DurationMs != 25 {
		t.Errorf("duration = %v; want 25", s.DurationMs)
	}
	if s.RowCount == nil || *s.RowCount != 3 {
		t.Errorf("row count = %v", s.RowCount)
	}
	if got := s.StartAttributes["db.operation"]; got != "SELECT" {
		t.Errorf("db.operation = %v", got)
	}
	if got := s.StartAttributes["db.executemany"]; got != false {
		t.Errorf("db.executemany = %v", got)
	}
	if got := s.StartAttributes["db.duration_measured_ms"]; got != 25.0 {
		t.Errorf("db.duration_measured_ms = %v", got)
	}
	if got := s.EndAttributes["db.row_count"]; got != int64(3) {
		t.Errorf("db.row_count = %v", got)
	}
}

func TestInstrumentor_NoTrackingEntry(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	in.After(ctx, "conn-never-seen", QueryResult{})
	if q.Stats().Total != 0 {
		t.Fatal("span enqueued without a tracking entry")
	}
}

func TestInstrumentor_TrackingIsPerConnection(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	in.Before(ctx, "conn-1", "SELECT 1", nil, false)
	in.After(ctx, "conn-2", QueryResult{})
	if q.Stats().Total != 0 {
		t.Fatal("post-execute on another connection consumed the entry")
	}

	in.After(ctx, "conn-1", QueryResult{})
	in.After(ctx, "conn-1", QueryResult{})
	if got := q.Stats().Total; got != 1 {
		t.Fatalf("total = %d; want exactly one span", got)
	}
	if in.tracker.Len() != 0 {
		t.Fatalf("tracker holds %d entries; want 0", in.tracker.Len())
	}
}

func TestInstrumentor_Suppressed(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := Suppress(ContextWithTrace(context.Background(), "trace-abc"))

	in.Before(ctx, "conn-1", "INSERT INTO things VALUES (1)", nil, false)
	in.After(ctx, "conn-1", QueryResult{})
	if q.Stats().Total != 0 {
		t.Fatal("suppressed query was captured")
	}
	if in.tracker.Len() != 0 {
		t.Fatal("suppressed query left a tracking entry")
	}
}

func TestInstrumentor_SkipsObservabilityTables(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	for _, stmt := range []string{
		"INSERT INTO observability_spans (id) VALUES (?)",
		"UPDATE OBSERVABILITY_TRACES SET status = ?",
		"select * from observability_events",
		"DELETE FROM Observability_Metrics",
	} {
		in.Before(ctx, "conn-1", stmt, nil, false)
		in.After(ctx, "conn-1", QueryResult{})
	}
	if q.Stats().Total != 0 {
		t.Fatal("observability table statement was captured")
	}
}

func TestInstrumentor_RequiresTrace(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := context.Background()

	in.Before(ctx, "conn-1", "SELECT 1", nil, false)
	in.After(ctx, "conn-1", QueryResult{})
	if q.Stats().Total != 0 {
		t.Fatal("query without a trace was captured")
	}
}

func TestInstrumentor_TraceResolution(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)

	in.Before(context.Background(), "conn-1", "SELECT 1", nil, false)
	in.After(context.Background(), "conn-1", QueryResult{ConnTraceID: "from-conn"})
	if s := drainOne(t, q); s.TraceID != "from-conn" {
		t.Fatalf("trace = %q; want connection trace", s.TraceID)
	}

	ctx := ContextWithTrace(context.Background(), "from-ctx")
	in.Before(ctx, "conn-1", "SELECT 1", nil, false)
	in.After(ctx, "conn-1", QueryResult{ConnTraceID: "from-conn"})
	if s := drainOne(t, q); s.TraceID != "from-ctx" {
		t.Fatalf("trace = %q; want context trace", s.TraceID)
	}
}

func TestInstrumentor_QueueFullIsSilentToCaller(t *testing.T) {
	var buf bytes.Buffer
	in, q := newTestInstrumentor(t, 1, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	for i := 0; i < 3; i++ {
		in.Before(ctx, "conn-1", "SELECT 1", nil, false)
		in.After(ctx, "conn-1", QueryResult{})
	}
	if s := q.Stats(); s.Total != 3 || s.Dropped != 2 {
		t.Fatalf("stats = %+v", s)
	}
	if !strings.Contains(buf.String(), "span queue full") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
}

func TestInstrumentor_ErrorStatus(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	in.Before(ctx, "conn-1", "DELETE FROM tools", nil, true)
	in.After(ctx, "conn-1", QueryResult{Err: errors.New("constraint failed")})

	s := drainOne(t, q)
	if s.Status != StatusError {
		t.Fatalf("status = %q; want error", s.Status)
	}
	if s.EndAttributes["db.error"] != "constraint failed" {
		t.Fatalf("db.error = %v", s.EndAttributes["db.error"])
	}
	if s.StartAttributes["db.executemany"] != true {
		t.Fatal("bulk flag not recorded")
	}
	if _, ok := s.EndAttributes["db.row_count"]; ok {
		t.Fatal("row count recorded for unknown count")
	}
}

func TestInstrumentor_Disabled(t *testing.T) {
	q := NewQueue(10, nil)
	in := NewInstrumentor(Config{Enabled: false}, q, WithLogger(quietLogger()))
	ctx := ContextWithTrace(context.Background(), "trace-abc")

	if tr := in.Before(ctx, "conn-1", "SELECT 1", nil, false); tr != nil {
		t.Fatal("disabled instrumentor tracked a query")
	}
	in.After(ctx, "conn-1", QueryResult{})
	if q.Stats().Total != 0 {
		t.Fatal("disabled instrumentor enqueued a span")
	}
}

func TestOperation(t *testing.T) {
	tests := []struct{ stmt, want string }{
		{"SELECT 1", "SELECT"},
		{"\n\tinsert into t values (1)", "INSERT"},
		{"with x as (select 1) select * from x", "WITH"},
		{"", "UNKNOWN"},
		{"   ", "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := operation(tt.stmt); got != tt.want {
			t.Errorf("operation(%q) = %q; want %q", tt.stmt, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 500); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	long := strings.Repeat("a", 600)
	if got := truncate(long, 500); len(got) != 500 {
		t.Fatalf("len = %d; want 500", len(got))
	}
	// "é" is two bytes; cutting at 3 would split the second one.
	if got := truncate("éé", 3); got != "é" {
		t.Fatalf("truncate multibyte = %q", got)
	}
}

func TestInstrumentor_TruncatesStatement(t *testing.T) {
	in, q := newTestInstrumentor(t, 10)
	ctx := ContextWithTrace(context.Background(), "trace-abc")
	stmt := "SELECT " + strings.Repeat("x", 1000)

	in.Before(ctx, "conn-1", stmt, nil, false)
	in.After(ctx, "conn-1", QueryResult{})

	got := drainOne(t, q).StartAttributes["db.statement"].(string)
	if len(got) != DefaultStatementMaxLen {
		t.Fatalf("statement length = %d; want %d", len(got), DefaultStatementMaxLen)
	}
}
