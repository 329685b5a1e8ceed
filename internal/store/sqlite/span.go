package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/gatewayobs/internal/store"
	"github.com/revittco/gatewayobs/internal/telemetry"
)

// Begin opens a span sink session backed by one transaction.
func (d *DB) Begin(ctx context.Context) (telemetry.SinkSession, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &spanSession{tx: tx, now: time.Now}, nil
}

type spanSession struct {
	tx   *sql.Tx
	now  func() time.Time
	done bool
}

func (s *spanSession) StartSpan(ctx context.Context, st telemetry.SpanStart) (string, error) {
	if s.done {
		return "", telemetry.ErrSessionClosed
	}
	attrs, err := encodeAttributes(st.Attributes)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}

	id := uuid.NewString()
	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO observability_spans
			(id, trace_id, name, kind, resource_type, resource_name, status, attributes, started_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?)`,
		id, st.TraceID, st.Name, st.Kind, st.ResourceType, st.ResourceName,
		attrs, formatTime(s.now()),
	)
	if err != nil {
		return "", mapConstraintError(err)
	}
	return id, nil
}

// EndSpan closes the span, merging attrs over the attributes recorded at
// start.
func (s *spanSession) EndSpan(ctx context.Context, spanID, status string, attrs map[string]any) error {
	if s.done {
		return telemetry.ErrSessionClosed
	}

	var raw, started string
	err := s.tx.QueryRowContext(ctx,
		`SELECT attributes, started_at FROM observability_spans WHERE id = ?`, spanID,
	).Scan(&raw, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	merged := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	for k, v := range attrs {
		merged[k] = v
	}
	enc, err := encodeAttributes(merged)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}

	ended := s.now()
	dur := float64(ended.Sub(parseTime(started))) / float64(time.Millisecond)
	res, err := s.tx.ExecContext(ctx, `
		UPDATE observability_spans
		SET status = ?, attributes = ?, ended_at = ?, duration_ms = ?
		WHERE id = ?`,
		status, enc, formatTime(ended), dur, spanID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// SetDuration replaces the computed duration with one measured by the
// caller.
func (s *spanSession) SetDuration(ctx context.Context, spanID string, durationMs float64) error {
	if s.done {
		return telemetry.ErrSessionClosed
	}
	res, err := s.tx.ExecContext(ctx,
		`UPDATE observability_spans SET duration_ms = ? WHERE id = ?`,
		durationMs, spanID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *spanSession) Commit() error {
	if s.done {
		return telemetry.ErrSessionClosed
	}
	s.done = true
	return s.tx.Commit()
}

// Close rolls back anything not committed. It is a no-op after Commit.
func (s *spanSession) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback()
}

// ListSpans returns the spans of a trace in start order.
func (d *DB) ListSpans(ctx context.Context, traceID string) ([]store.Span, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT id, trace_id, name, kind, resource_type, resource_name, status,
			attributes, started_at, ended_at, duration_ms
		FROM observability_spans
		WHERE trace_id = ?
		ORDER BY started_at ASC, id ASC`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Span
	for rows.Next() {
		var (
			sp             store.Span
			attrs, started string
			ended          *string
			dur            sql.NullFloat64
		)
		if err := rows.Scan(&sp.ID, &sp.TraceID, &sp.Name, &sp.Kind, &sp.ResourceType,
			&sp.ResourceName, &sp.Status, &attrs, &started, &ended, &dur); err != nil {
			return nil, err
		}
		sp.Attributes = []byte(attrs)
		sp.StartedAt = parseTime(started)
		sp.EndedAt = parseTimePtr(ended)
		if dur.Valid {
			sp.DurationMs = &dur.Float64
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (d *DB) GetSpanSummary(ctx context.Context, after, before time.Time) (*store.SpanSummary, error) {
	var s store.SpanSummary
	where := "WHERE started_at >= ? AND started_at <= ?"
	args := []any{formatTime(after), formatTime(before)}

	err := d.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT trace_id),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG(duration_ms), 0)
		FROM observability_spans
		`+where,
		args...,
	).Scan(&s.TotalSpans, &s.TraceCount, &s.ErrorCount, &s.AvgDurationMs)
	if err != nil {
		return nil, err
	}

	// P95 approximation.
	err = d.q.QueryRowContext(ctx, `
		SELECT COALESCE(duration_ms, 0) FROM observability_spans
		`+where+`
		ORDER BY duration_ms ASC
		LIMIT 1 OFFSET (
			SELECT CAST(COUNT(*) * 0.95 AS INTEGER) FROM observability_spans
			`+where+`
		)`,
		append(args, args...)...,
	).Scan(&s.P95DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		s.P95DurationMs = 0
	} else if err != nil {
		return nil, fmt.Errorf("span p95: %w", err)
	}
	return &s, nil
}

// TopOperations ranks span names by how often they were recorded.
func (d *DB) TopOperations(ctx context.Context, limit int) ([]store.OperationStats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.q.QueryContext(ctx, `
		SELECT
			name,
			COUNT(*) AS calls,
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(duration_ms), 0)
		FROM observability_spans
		GROUP BY name
		ORDER BY calls DESC, name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []store.OperationStats{}
	for rows.Next() {
		var o store.OperationStats
		if err := rows.Scan(&o.Name, &o.Count, &o.ErrorCount, &o.AvgDurationMs, &o.MaxDurationMs); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
