// Package server provides the dashboard HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/devrev/shopcore/internal/config"
	"github.com/devrev/shopcore/internal/engine"
	"github.com/devrev/shopcore/internal/handler"
	"github.com/devrev/shopcore/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the dashboard HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	engine     *engine.Engine
	handlers   *handler.Handlers
	logger     *zap.Logger
	cfg        *config.Config
}

// NewServer creates the server and configures its routes.
func NewServer(cfg *config.Config, e *engine.Engine, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	handlers := handler.NewHandlers(e.Store, e.Cache, e.Transactions, e.Collector, e.Optimizer, logger)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		engine:   e,
		handlers: handlers,
		logger:   logger,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.Timeout(s.cfg.Server.RequestTimeout),
	}
	if s.cfg.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		chain = append(chain, limiter.Limit)
	}
	s.router.Use(mux.MiddlewareFunc(middleware.Chain(chain...)))

	// Probes and scraping
	s.router.HandleFunc("/health/live", s.engine.Health.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.engine.Health.ReadinessHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.engine.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.handlers.Register(s.router.PathPrefix("/v1").Subrouter())

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handlers.MethodNotAllowed)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
