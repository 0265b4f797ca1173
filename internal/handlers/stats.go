package handlers

import (
	"net/http"
)

// GetStats returns a combined operational snapshot: record counts, the
// connection pool, cache hit rates and rate limiter rejections.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	recordCount, err := h.repo.Count(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records":             recordCount,
		"pool":                h.storage.PoolStats(),
		"cache":               h.cache.Stats(r.Context()),
		"rate_limit_rejected": h.limiter.Rejections(),
	})
}

func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// FlushCache clears every cached entry. The next read repopulates from
// the relational store.
func (h *Handlers) FlushCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Flush(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Health reports component status. The relational store is the only
// component that can fail the check; optional services report their
// state without affecting the overall verdict.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "ok"

	dbStatus := "ok"
	if err := h.storage.Health(); err != nil {
		dbStatus = "down"
		overall = "degraded"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":   overall,
		"database": dbStatus,
		"cache":    componentStatus(h.cache.Enabled()),
		"audit":    componentStatus(h.sink.Enabled()),
	})
}

func componentStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
