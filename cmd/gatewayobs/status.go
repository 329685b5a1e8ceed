package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/revittco/gatewayobs/internal/store/sqlite"
	"github.com/revittco/gatewayobs/internal/telemetry"
)

func cmdStatus() error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqlite.New(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	schema, err := db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}

	now := time.Now().UTC()
	summary, err := db.GetSpanSummary(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return fmt.Errorf("span summary: %w", err)
	}

	top, err := db.TopOperations(ctx, 5)
	if err != nil {
		return fmt.Errorf("top operations: %w", err)
	}

	routes, err := db.RouteStats(ctx, now.Add(-24*time.Hour), 5)
	if err != nil {
		return fmt.Errorf("route stats: %w", err)
	}

	fmt.Printf("gatewayobs status (db: %s, schema v%d)\n", cfg.DBDSN, schema)
	fmt.Printf("  Spans (24h):     %d\n", summary.TotalSpans)
	fmt.Printf("  Traces (24h):    %d\n", summary.TraceCount)
	fmt.Printf("  Errors (24h):    %d\n", summary.ErrorCount)
	fmt.Printf("  Avg / p95 ms:    %.2f / %.2f\n", summary.AvgDurationMs, summary.P95DurationMs)
	for _, op := range top {
		fmt.Printf("    %-28s %6d calls  %8.2f ms avg\n", op.Name, op.Count, op.AvgDurationMs)
	}
	fmt.Println("  Requests (24h):")
	for _, r := range routes {
		fmt.Printf("    %-6s %-28s %6d reqs  %4d errors\n", r.Method, r.Route, r.Count, r.ErrorCount)
	}

	base := listenURL(cfg.HTTPAddr)
	q, err := fetchQueueStats(ctx, base)
	if err != nil {
		fmt.Printf("  Server:          not reachable at %s\n", base)
		return nil
	}
	fmt.Printf("  Server:          %s\n", base)
	fmt.Printf("  Span queue:      %d pending, %d dropped of %d (%.1f%%)\n",
		q.Pending, q.Dropped, q.Total, q.DropRate*100)
	return nil
}

// fetchQueueStats asks a running server for its span queue counters.
func fetchQueueStats(ctx context.Context, base string) (*telemetry.QueueStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/telemetry/queue", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("queue stats: %s", resp.Status)
	}

	var stats telemetry.QueueStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode queue stats: %w", err)
	}
	return &stats, nil
}
