package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/config"
	"conversation-chaos/internal/logging"
)

// HTTPServer represents the HTTP REST API server
type HTTPServer struct {
	config *config.Config
	logger *logging.Logger
	server *http.Server
}

// NewHTTPServer creates a new HTTP server around the REST handler
func NewHTTPServer(cfg *config.Config, restHandler *api.RESTHandler, logger *logging.Logger) *HTTPServer {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &HTTPServer{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      restHandler.SetupRoutes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server",
		"address", s.server.Addr,
		"service", "http",
	)
	return s.server.ListenAndServe()
}

// Serve serves on an existing listener
func (s *HTTPServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop stops the HTTP server gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
