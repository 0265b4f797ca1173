package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"record-gateway/internal/audit"
	"record-gateway/internal/cache"
	apperrors "record-gateway/internal/common/errors"
	"record-gateway/internal/common/logging"
	"record-gateway/internal/config"
	"record-gateway/internal/ratelimit"
	"record-gateway/internal/repository"
	"record-gateway/internal/storage"
)

type Handlers struct {
	repo    *repository.RecordRepository
	storage storage.Storage
	cache   cache.Store
	sink    audit.Sink
	limiter *ratelimit.Limiter
	config  *config.Config
	logger  logging.Logger
}

func New(repo *repository.RecordRepository, store storage.Storage, cacheStore cache.Store, sink audit.Sink, limiter *ratelimit.Limiter, cfg *config.Config) *Handlers {
	return &Handlers{
		repo:    repo,
		storage: store,
		cache:   cacheStore,
		sink:    sink,
		limiter: limiter,
		config:  cfg,
		logger:  logging.GetGlobalLogger().WithFields(logging.String("component", "handlers")),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the shared error taxonomy onto HTTP status codes. The
// message is returned verbatim; causes stay server-side.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		switch appErr.Type {
		case apperrors.ErrTypeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrTypeValidation:
			status = http.StatusBadRequest
		case apperrors.ErrTypeConflict:
			status = http.StatusConflict
		case apperrors.ErrTypeRateLimit:
			status = http.StatusTooManyRequests
		case apperrors.ErrTypeUnavailable, apperrors.ErrTypeConnection:
			status = http.StatusServiceUnavailable
		case apperrors.ErrTypeTimeout:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusInternalServerError
			message = "internal server error"
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", err)
	}

	writeJSON(w, status, map[string]string{"error": message})
}
