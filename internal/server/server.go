// Package server implements the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/cross19xx/eas-build/internal/api"
	"github.com/cross19xx/eas-build/internal/service"
	"github.com/cross19xx/eas-build/pkg/config"
	"github.com/cross19xx/eas-build/pkg/middleware"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	// httpServer is the underlying HTTP server instance.
	httpServer *http.Server
	// config holds server configuration.
	config *config.Config
	// logger is the structured logger instance.
	logger *zap.Logger
}

// New creates a new Server instance serving the build API of svc.
func New(cfg *config.Config, logger *zap.Logger, svc *service.Service, version, commit, buildTime string) *Server {
	router := api.NewRouter(logger, svc, version, commit, buildTime)

	// RequestID -> Logger -> Recovery -> Router (metrics are recorded per route inside the router)
	handler := middleware.RequestID(
		middleware.Logger(logger)(
			middleware.Recovery(logger)(router),
		),
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		config: cfg,
		logger: logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("HTTP server starting", zap.String("addr", listener.Addr().String()))

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. Builds in flight keep running
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
