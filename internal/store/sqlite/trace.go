package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/gatewayobs/internal/store"
)

func (d *DB) CreateTrace(ctx context.Context, t *store.Trace) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = store.TraceActive
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO observability_traces (id, name, status, attributes, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Status, normalizeJSON(t.Attributes, "{}"), formatTime(t.StartedAt),
	)
	return mapConstraintError(err)
}

// EndTrace marks a trace finished and records its wall-clock duration.
func (d *DB) EndTrace(ctx context.Context, id, status string, endedAt time.Time) error {
	return d.withTx(ctx, func(q queryable) error {
		var started string
		err := q.QueryRowContext(ctx,
			`SELECT started_at FROM observability_traces WHERE id = ?`, id,
		).Scan(&started)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}

		dur := float64(endedAt.Sub(parseTime(started))) / float64(time.Millisecond)
		res, err := q.ExecContext(ctx, `
			UPDATE observability_traces
			SET status = ?, ended_at = ?, duration_ms = ?
			WHERE id = ?`,
			status, formatTime(endedAt), dur, id,
		)
		if err != nil {
			return err
		}
		return checkRowsAffected(res)
	})
}

func (d *DB) GetTrace(ctx context.Context, id string) (*store.Trace, error) {
	row := d.q.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.status, t.attributes, t.started_at, t.ended_at, t.duration_ms,
			(SELECT COUNT(*) FROM observability_spans s WHERE s.trace_id = t.id)
		FROM observability_traces t WHERE t.id = ?`, id)
	t, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

// ListTraces returns the most recent traces, newest first.
func (d *DB) ListTraces(ctx context.Context, limit int) ([]store.Trace, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.q.QueryContext(ctx, `
		SELECT t.id, t.name, t.status, t.attributes, t.started_at, t.ended_at, t.duration_ms,
			(SELECT COUNT(*) FROM observability_spans s WHERE s.trace_id = t.id)
		FROM observability_traces t
		ORDER BY t.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// PruneTraces deletes traces started before the cutoff together with
// their spans, spans older than the cutoff whose trace was never
// recorded, and gateway requests older than the cutoff. It returns the
// number of traces removed.
func (d *DB) PruneTraces(ctx context.Context, before time.Time) (int, error) {
	var n int64
	err := d.withTx(ctx, func(q queryable) error {
		cutoff := formatTime(before)
		if _, err := q.ExecContext(ctx, `
			DELETE FROM observability_spans
			WHERE started_at < ?
			   OR trace_id IN (SELECT id FROM observability_traces WHERE started_at < ?)`,
			cutoff, cutoff,
		); err != nil {
			return fmt.Errorf("prune spans: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM gateway_requests WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("prune requests: %w", err)
		}
		res, err := q.ExecContext(ctx,
			`DELETE FROM observability_traces WHERE started_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("prune traces: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(s scanner) (*store.Trace, error) {
	var (
		t              store.Trace
		attrs, started string
		ended          *string
		dur            sql.NullFloat64
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Status, &attrs, &started, &ended, &dur, &t.SpanCount); err != nil {
		return nil, err
	}
	t.Attributes = []byte(attrs)
	t.StartedAt = parseTime(started)
	t.EndedAt = parseTimePtr(ended)
	if dur.Valid {
		t.DurationMs = &dur.Float64
	}
	return &t, nil
}
