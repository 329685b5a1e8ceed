package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/revittco/gatewayobs/internal/cache"
	"github.com/revittco/gatewayobs/internal/report"
	"github.com/revittco/gatewayobs/internal/store"
	"github.com/revittco/gatewayobs/internal/telemetry"
)

// RouterDeps holds the dependencies needed by the HTTP API router.
type RouterDeps struct {
	Store    store.Store
	Cache    *cache.TieredCache
	Reporter *report.Reporter
	Pipeline *telemetry.Pipeline
	SpanBus  *telemetry.Bus      // optional; enables the live span stream
	Gatherer prometheus.Gatherer // optional; enables /metrics
	Version  string
}

// NewRouter creates an http.Handler with all API routes.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	health := &healthHandler{store: deps.Store, version: deps.Version}
	mux.HandleFunc("GET /api/v1/health", health.check)

	ch := &cacheHandler{cache: deps.Cache}
	mux.HandleFunc("GET /api/v1/cache/stats", ch.stats)
	mux.HandleFunc("POST /api/v1/cache/stats/reset", ch.resetStats)
	mux.HandleFunc("POST /api/v1/cache/flush", ch.flush)

	th := &telemetryHandler{pipeline: deps.Pipeline}
	mux.HandleFunc("GET /api/v1/telemetry/queue", th.queue)

	if deps.SpanBus != nil {
		sse := &spanSSEHandler{bus: deps.SpanBus}
		mux.HandleFunc("GET /api/v1/telemetry/stream", sse.stream)
	}

	mh := &metricsHandler{reporter: deps.Reporter}
	mux.HandleFunc("GET /api/v1/metrics/summary", mh.summary)
	mux.HandleFunc("GET /api/v1/metrics/top", mh.top)
	mux.HandleFunc("GET /api/v1/metrics/routes", mh.routes)

	tr := &traceHandler{store: deps.Store}
	mux.HandleFunc("GET /api/v1/traces", tr.list)
	mux.HandleFunc("GET /api/v1/traces/{id}", tr.get)
	mux.HandleFunc("GET /api/v1/traces/{id}/spans", tr.spans)

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Apply middleware chain: CORS -> origin check -> security headers ->
	// JSON content type -> RequestID -> Trace -> Logging -> mux
	var handler http.Handler = mux
	handler = loggingMiddleware(handler)
	handler = traceMiddleware(deps.Store, deps.Store, handler)
	handler = requestIDMiddleware(handler)
	handler = requireJSONContentTypeMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = browserOriginProtectionMiddleware(handler)
	handler = corsMiddleware(handler)

	return handler
}
