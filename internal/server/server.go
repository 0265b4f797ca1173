// Package server wraps http.Server with background startup and graceful
// shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"record-gateway/internal/common/logging"
)

type Server struct {
	srv    *http.Server
	logger logging.Logger
}

func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logging.GetGlobalLogger().WithFields(logging.String("component", "server")),
	}
}

// Start begins serving in the background. Listener failures after startup
// surface through the process log rather than the return value.
func (s *Server) Start() error {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server stopped unexpectedly", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
