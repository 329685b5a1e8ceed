package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/gatewayobs/internal/store"
)

func (d *DB) RecordRequest(ctx context.Context, req *store.GatewayRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	_, err := d.q.ExecContext(ctx, `
		INSERT INTO gateway_requests (id, trace_id, request_id, method, route, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.TraceID, req.RequestID, req.Method, req.Route, req.Status,
		req.DurationMs, formatTime(req.CreatedAt),
	)
	return mapConstraintError(err)
}

// RouteStats ranks routes by request count since after. Responses with a
// 5xx status count as errors.
func (d *DB) RouteStats(ctx context.Context, after time.Time, limit int) ([]store.RouteStats, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.q.QueryContext(ctx, `
		SELECT method, route, COUNT(*),
			COUNT(*) FILTER (WHERE status >= 500),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(MAX(duration_ms), 0)
		FROM gateway_requests
		WHERE created_at >= ?
		GROUP BY method, route
		ORDER BY COUNT(*) DESC, route ASC
		LIMIT ?`, formatTime(after), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.RouteStats
	for rows.Next() {
		var rs store.RouteStats
		if err := rows.Scan(&rs.Method, &rs.Route, &rs.Count, &rs.ErrorCount,
			&rs.AvgDurationMs, &rs.MaxDurationMs); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}
