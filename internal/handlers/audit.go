package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"record-gateway/internal/audit"
	apperrors "record-gateway/internal/common/errors"
	"record-gateway/internal/common/pagination"
)

// QueryAuditEvents lists audit events matching the query filter, newest
// first. An unreachable audit store yields an empty page, not an error.
func (h *Handlers) QueryAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	events := h.sink.Query(r.Context(), filter)
	if events == nil {
		events = []audit.Event{}
	}
	total := h.sink.Count(r.Context(), filter)

	params := pagination.Clamp(filter.Limit, filter.Offset)
	writeJSON(w, http.StatusOK, pagination.NewResponse(events, params, int(total)))
}

func (h *Handlers) GetAuditStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sink.Stats(r.Context()))
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	query := r.URL.Query()
	filter := audit.Filter{
		PathGlob: query.Get("path"),
	}

	if raw := query.Get("type"); raw != "" {
		if !audit.ValidType(audit.EventType(raw)) {
			return filter, apperrors.ValidationError(fmt.Sprintf("unknown event type %q", raw))
		}
		filter.Type = audit.EventType(raw)
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.ValidationError("from must be an RFC3339 timestamp")
		}
		filter.From = from
	}

	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.ValidationError("to must be an RFC3339 timestamp")
		}
		filter.To = to
	}

	if raw := query.Get("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return filter, apperrors.ValidationError("status must be an integer")
		}
		filter.StatusCode = status
	}

	filter.Limit, _ = strconv.Atoi(query.Get("limit"))
	filter.Offset, _ = strconv.Atoi(query.Get("offset"))

	return filter, nil
}
