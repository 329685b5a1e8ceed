package telemetry

import "context"

type contextKey string

const (
	suppressKey contextKey = "suppress_instrumentation"
	traceIDKey  contextKey = "trace_id"
)

// Suppress marks ctx so queries issued with it are not captured. The span
// writer persists through a suppressed context, which keeps its own
// database writes from feeding back into the queue.
func Suppress(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey, true)
}

// Suppressed reports whether instrumentation is suppressed for ctx.
func Suppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressKey).(bool)
	return v
}

// ContextWithTrace attaches a trace ID to ctx. Queries issued with the
// returned context are correlated with that trace.
func ContextWithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceFromContext returns the trace ID carried by ctx, if any.
func TraceFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}
