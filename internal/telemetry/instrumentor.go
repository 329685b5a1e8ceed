package telemetry

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// observabilityTables are the sink's own tables. Statements touching them
// are never captured, even when the recursion guard is missing.
var observabilityTables = []string{
	"OBSERVABILITY_TRACES",
	"OBSERVABILITY_SPANS",
	"OBSERVABILITY_EVENTS",
	"OBSERVABILITY_METRICS",
}

// QueryResult is what the post-execute hook learns about a finished query.
type QueryResult struct {
	// RowCount is nil when the driver cannot report it.
	RowCount    *int64
	Err         error
	// ConnTraceID is the trace attached to the connection, if any.
	ConnTraceID string
}

// Instrumentor turns pre/post-execute driver hooks into spans on a Queue.
type Instrumentor struct {
	cfg     Config
	tracker *Tracker
	queue   *Queue
	logger  *slog.Logger
	now     func() time.Time
}

// NewInstrumentor creates an Instrumentor that enqueues onto q.
func NewInstrumentor(cfg Config, q *Queue, opts ...Option) *Instrumentor {
	o := buildOptions(opts)
	return &Instrumentor{
		cfg:     cfg.withDefaults(),
		tracker: NewTracker(),
		queue:   q,
		logger:  o.logger,
		now:     o.now,
	}
}

// Enabled reports whether queries are captured at all.
func (in *Instrumentor) Enabled() bool {
	return in != nil && in.cfg.Enabled
}

// Before records the start of a query on connID.
func (in *Instrumentor) Before(_ context.Context, connID, statement string, args []any, bulk bool) *Tracking {
	if !in.Enabled() {
		return nil
	}
	t := &Tracking{
		ConnID:    connID,
		StartTime: in.now(),
		Statement: statement,
		Args:      args,
		Bulk:      bulk,
	}
	in.tracker.Begin(t)
	return t
}

// Discard drops the tracking entry for connID without emitting a span.
// Drivers call it when a statement is re-routed (driver.ErrSkip).
func (in *Instrumentor) Discard(connID string) {
	if !in.Enabled() {
		return
	}
	in.tracker.Pop(connID)
}

// After completes the query tracked for connID and enqueues its span.
// It never returns an error: every failure mode ends in "no span".
func (in *Instrumentor) After(ctx context.Context, connID string, res QueryResult) {
	if !in.Enabled() {
		return
	}
	t, ok := in.tracker.Pop(connID)
	if !ok {
		in.logger.Debug("no tracked query for connection", "conn_id", connID)
		return
	}
	if Suppressed(ctx) {
		return
	}
	if touchesObservabilityTables(t.Statement) {
		return
	}

	durationMs := float64(in.now().Sub(t.StartTime)) / float64(time.Millisecond)

	traceID := TraceFromContext(ctx)
	if traceID == "" {
		traceID = res.ConnTraceID
	}
	if traceID == "" {
		in.logger.Debug("query without trace, not instrumented",
			"operation", operation(t.Statement),
			"duration_ms", durationMs,
		)
		return
	}

	span := in.buildSpan(t, traceID, durationMs, res)
	if !in.queue.Enqueue(span) {
		in.logger.Warn("span queue full, dropping span",
			"trace_id", traceID,
			"name", span.Name,
		)
	}
}

func (in *Instrumentor) buildSpan(t *Tracking, traceID string, durationMs float64, res QueryResult) SpanRecord {
	op := operation(t.Statement)

	end := map[string]any{}
	if res.RowCount != nil {
		end["db.row_count"] = *res.RowCount
	}
	status := StatusOK
	if res.Err != nil {
		status = StatusError
		end["db.error"] = res.Err.Error()
	}

	return SpanRecord{
		TraceID:      traceID,
		Name:         "db.query." + strings.ToLower(op),
		Kind:         KindClient,
		ResourceType: ResourceDatabase,
		ResourceName: op,
		StartAttributes: map[string]any{
			"db.statement":            truncate(t.Statement, in.cfg.StatementMaxLen),
			"db.operation":            op,
			"db.executemany":          t.Bulk,
			"db.duration_measured_ms": durationMs,
		},
		EndAttributes: end,
		DurationMs:    durationMs,
		Status:        status,
		RowCount:      res.RowCount,
	}
}

// operation returns the upper-cased leading keyword of a statement.
func operation(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func touchesObservabilityTables(statement string) bool {
	upper := strings.ToUpper(statement)
	for _, table := range observabilityTables {
		if strings.Contains(upper, table) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
