package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"record-gateway/internal/audit"
	"record-gateway/internal/common/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// RequestLogging logs every request and mirrors it into the audit trail
// as an api_request event. The trail write is fire-and-forget, so a dead
// audit store adds no latency here.
func (h *Handlers) RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := newRequestID()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		h.logger.Info("request completed",
			logging.String("request_id", requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", duration),
		)

		h.sink.Log(audit.Event{
			Type:       audit.EventAPIRequest,
			Timestamp:  time.Now().UTC(),
			RequestID:  requestID,
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: rec.status,
			DurationMs: duration.Milliseconds(),
		})
	})
}

func newRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}
