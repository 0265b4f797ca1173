package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"record-gateway/internal/ratelimit"
)

// Router builds the HTTP routing table. Mutating record routes sit
// behind the rate limiter keyed by client and route; reads are not
// limited.
func (h *Handlers) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.RequestLogging)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/records", h.ListRecords).Methods(http.MethodGet)
	api.HandleFunc("/records/{id:[0-9]+}", h.GetRecord).Methods(http.MethodGet)

	limited := api.NewRoute().Subrouter()
	limited.Use(h.limiter.HTTPMiddleware(ratelimit.ClientRouteKey))
	limited.HandleFunc("/records", h.CreateRecord).Methods(http.MethodPost)
	limited.HandleFunc("/records", h.DeleteAllRecords).Methods(http.MethodDelete)
	limited.HandleFunc("/records/{id:[0-9]+}", h.UpdateRecord).Methods(http.MethodPut)
	limited.HandleFunc("/records/{id:[0-9]+}", h.DeleteRecord).Methods(http.MethodDelete)

	api.HandleFunc("/audit/events", h.QueryAuditEvents).Methods(http.MethodGet)
	api.HandleFunc("/audit/stats", h.GetAuditStats).Methods(http.MethodGet)

	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", h.GetCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/flush", h.FlushCache).Methods(http.MethodPost)

	return router
}
