package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/revittco/gatewayobs/internal/report"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

type metricsHandler struct {
	reporter *report.Reporter
}

func (h *metricsHandler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reporter.Summary(r.Context())
	if err != nil {
		slog.Error("span summary", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load span summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *metricsHandler) top(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTopLimit, maxTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ops, err := h.reporter.TopOperations(r.Context(), limit)
	if err != nil {
		slog.Error("top operations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load top operations")
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *metricsHandler) routes(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTopLimit, maxTopLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	routes, err := h.reporter.Routes(r.Context(), limit)
	if err != nil {
		slog.Error("route stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load route stats")
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// parseLimit reads the "limit" query parameter, clamping it to ceiling.
func parseLimit(r *http.Request, def, ceiling int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errInvalidLimit
	}
	return min(n, ceiling), nil
}
