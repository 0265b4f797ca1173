package pagination

import (
	"net/http"
	"strconv"
)

// Params represents limit/offset pagination parameters
type Params struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Response represents a paginated response
type Response[T any] struct {
	Limit   int `json:"limit"`
	Offset  int `json:"offset"`
	Total   int `json:"total"`
	Results []T `json:"results"`
}

// DefaultLimit is the default number of items per page
const DefaultLimit = 50

// MaxLimit is the maximum allowed items per page
const MaxLimit = 100

// ParseParams extracts limit/offset parameters from an HTTP request,
// clamping them to the allowed range.
func ParseParams(r *http.Request) Params {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return Clamp(limit, offset)
}

// Clamp normalizes raw limit/offset values to the allowed range
func Clamp(limit, offset int) Params {
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// NewResponse creates a new paginated response
func NewResponse[T any](results []T, params Params, total int) Response[T] {
	return Response[T]{
		Limit:   params.Limit,
		Offset:  params.Offset,
		Total:   total,
		Results: results,
	}
}
