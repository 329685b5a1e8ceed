package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/revittco/gatewayobs/internal/store"
)

const (
	defaultTraceLimit = 50
	maxTraceLimit     = 500
)

var errInvalidLimit = errors.New("limit must be a positive integer")

type traceHandler struct {
	store store.Store
}

func (h *traceHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultTraceLimit, maxTraceLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	traces, err := h.store.ListTraces(r.Context(), limit)
	if err != nil {
		slog.Error("list traces", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list traces")
		return
	}
	if traces == nil {
		traces = []store.Trace{}
	}
	writeJSON(w, http.StatusOK, traces)
}

func (h *traceHandler) get(w http.ResponseWriter, r *http.Request) {
	tr, err := h.store.GetTrace(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		slog.Error("get trace", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get trace")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (h *traceHandler) spans(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.GetTrace(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	} else if err != nil {
		slog.Error("get trace", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get trace")
		return
	}
	spans, err := h.store.ListSpans(r.Context(), id)
	if err != nil {
		slog.Error("list spans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list spans")
		return
	}
	if spans == nil {
		spans = []store.Span{}
	}
	writeJSON(w, http.StatusOK, spans)
}
