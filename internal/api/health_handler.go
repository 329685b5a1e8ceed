package api

import (
	"context"
	"net/http"
	"time"

	"github.com/revittco/gatewayobs/internal/store"
)

var startTime = time.Now()

type healthHandler struct {
	store   store.Store
	version string
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int    `json:"uptime_seconds"`
	Database      string `json:"database"`
}

func (h *healthHandler) check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int(time.Since(startTime).Seconds()),
		Database:      "ok",
	}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
