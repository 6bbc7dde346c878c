// Package api serves the reconciliation workflows over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/api/middleware"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/importer"
	"github.com/Sal-Romano/Otter.Money3-sub000/internal/service"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call.
type Deps struct {
	Household *service.Household
	Imports   *service.ImportService
	Syncs     *service.SyncService // nil disables the sync endpoints
	Parsers   *importer.Registry
	DB        Pinger
	Gatherer  prometheus.Gatherer // nil serves the default registry
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, log zerolog.Logger) *Server {
	if deps.Parsers == nil {
		deps.Parsers = importer.DefaultRegistry()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		router: chi.NewRouter(),
		log:    log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig(s.config.AllowedOrigins)))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.health)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/accounts", s.listAccounts)
		r.Get("/runs", s.listRuns)

		r.Post("/import/preview", s.importPreview)
		r.Post("/import/execute", s.importExecute)

		if s.deps.Syncs != nil {
			r.Post("/accounts/{id}/sync/preview", s.syncPreview)
			r.Post("/accounts/{id}/sync/execute", s.syncExecute)
		}
	})
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "otter-api")
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
