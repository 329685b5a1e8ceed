package api

import (
	"net/http"

	"github.com/revittco/gatewayobs/internal/telemetry"
)

type telemetryHandler struct {
	pipeline *telemetry.Pipeline
}

type queueResponse struct {
	telemetry.QueueStats
	WriterRunning bool `json:"writer_running"`
}

func (h *telemetryHandler) queue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, queueResponse{
		QueueStats:    h.pipeline.Queue().Stats(),
		WriterRunning: h.pipeline.Running(),
	})
}
