package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/revittco/gatewayobs/internal/store"
	"github.com/revittco/gatewayobs/internal/telemetry"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// untracedPaths are polled constantly or held open, so they get no trace.
var untracedPaths = map[string]bool{
	"/api/v1/health":           true,
	"/api/v1/telemetry/stream": true,
	"/metrics":                 true,
}

// requestIDMiddleware injects a unique request ID into the request context
// and sets it as a response header.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// traceMiddleware opens a trace for each request and puts its ID in the
// request context, so database queries made while serving it are recorded
// as spans. A caller-supplied X-Trace-ID is reused when it is a UUID.
// Once the handler returns, the request is recorded in the gateway request
// log under the same trace. Failing to record either never fails the
// request.
func traceMiddleware(traces store.TraceStore, requests store.RequestStore, next http.Handler) http.Handler {
	if traces == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if untracedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		id := r.Header.Get("X-Trace-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		ctx := context.WithoutCancel(r.Context())

		tr := &store.Trace{
			ID:         id,
			Name:       r.Method + " " + r.URL.Path,
			Attributes: traceAttributes(r),
		}
		if err := traces.CreateTrace(ctx, tr); err != nil {
			slog.Warn("create trace failed", "trace_id", id, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-Trace-ID", id)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		inner := r.WithContext(telemetry.ContextWithTrace(r.Context(), id))
		next.ServeHTTP(sw, inner)

		if requests != nil {
			req := &store.GatewayRequest{
				TraceID:    id,
				Method:     r.Method,
				Route:      routeOf(inner),
				Status:     sw.status,
				DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
			}
			if rid, ok := r.Context().Value(requestIDKey).(string); ok {
				req.RequestID = rid
			}
			// Recorded under the trace so the insert becomes one of its spans.
			if err := requests.RecordRequest(telemetry.ContextWithTrace(ctx, id), req); err != nil {
				slog.Warn("record request failed", "trace_id", id, "error", err)
			}
		}

		status := store.TraceOK
		if sw.status >= http.StatusInternalServerError {
			status = store.TraceError
		}
		if err := traces.EndTrace(ctx, id, status, time.Now().UTC()); err != nil {
			slog.Warn("end trace failed", "trace_id", id, "error", err)
		}
	})
}

// routeOf returns the path part of the mux pattern that served r, or
// "unmatched" when no route matched.
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// traceAttributes describes the request being traced. Sensitive query
// parameters are redacted.
func traceAttributes(r *http.Request) json.RawMessage {
	attrs := map[string]any{
		"http.method": r.Method,
		"http.path":   r.URL.Path,
	}
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		attrs["http.request_id"] = id
	}
	if q := redactQuery(r.URL.Query()); q != nil {
		attrs["http.query"] = q
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil
	}
	return b
}

// loggingMiddleware logs each request with method, path, status, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(requestIDKey),
			"trace_id", telemetry.TraceFromContext(r.Context()),
		)
	})
}

// corsMiddleware allows requests from localhost origins for development.
// Preflights from any other origin are refused.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		local := isLocalOrigin(origin)
		if local {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Trace-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			if origin != "" && !local {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// browserOriginProtectionMiddleware rejects browser requests coming from
// non-local sites.
func browserOriginProtectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && !isLocalOrigin(origin) {
			writeError(w, http.StatusForbidden, "cross-origin request blocked")
			return
		}
		if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			writeError(w, http.StatusForbidden, "cross-site request blocked")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware sets conservative browser security headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// requireJSONContentTypeMiddleware rejects request bodies that are not JSON.
// Body-less POSTs (e.g. a bare flush) are allowed.
func requireJSONContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength == 0 && r.Header.Get("Content-Type") == "" {
			next.ServeHTTP(w, r)
			return
		}
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isLocalOrigin returns true for localhost/127.0.0.1 origins.
func isLocalOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// statusWriter captures the HTTP status code for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush delegates to the underlying ResponseWriter so SSE handlers work.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
