package api

import (
	"net/http"

	"github.com/revittco/gatewayobs/internal/cache"
)

type cacheHandler struct {
	cache *cache.TieredCache
}

func (h *cacheHandler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *cacheHandler) resetStats(w http.ResponseWriter, _ *http.Request) {
	h.cache.ResetStats()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type flushRequest struct {
	Key    string `json:"key"`    // optional: drop a single key
	Prefix string `json:"prefix"` // optional: drop every key with this prefix
}

// flush drops cached entries from both tiers. With no body it drops all.
func (h *cacheHandler) flush(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}
	if req.Key != "" && req.Prefix != "" {
		writeError(w, http.StatusBadRequest, "set key or prefix, not both")
		return
	}

	ctx := r.Context()
	switch {
	case req.Key != "":
		h.cache.Invalidate(ctx, req.Key)
	case req.Prefix != "":
		h.cache.InvalidatePrefix(ctx, req.Prefix)
	default:
		h.cache.InvalidateAll(ctx)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}
