package telemetry

// Span kinds and statuses written by the query instrumentation.
const (
	KindClient = "client"

	StatusOK    = "ok"
	StatusError = "error"

	ResourceDatabase = "database"
)

// SpanRecord is one captured database query. It is immutable once
// enqueued and is consumed exactly once by the Writer, or dropped.
type SpanRecord struct {
	TraceID         string         `json:"trace_id"`
	Name            string         `json:"name"`
	Kind            string         `json:"kind"`
	ResourceType    string         `json:"resource_type"`
	ResourceName    string         `json:"resource_name"`
	StartAttributes map[string]any `json:"start_attributes"`
	EndAttributes   map[string]any `json:"end_attributes"`
	DurationMs      float64        `json:"duration_ms"`
	Status          string         `json:"status"`
	RowCount        *int64         `json:"row_count,omitempty"`
}
