// Package api is the operator console: an HTTP API over the open campaign
// sessions.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/campaignctl/internal/config"
	"github.com/foxzi/campaignctl/internal/ipfilter"
	"github.com/foxzi/campaignctl/internal/metrics"
	"github.com/foxzi/campaignctl/internal/session"
)

// Server is the console HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	sessions   *session.Manager
	config     *config.APIConfig
	filter     *ipfilter.Filter
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new console server
func NewServer(sessions *session.Manager, cfg *config.APIConfig, logger *slog.Logger) (*Server, error) {
	filter, err := ipfilter.New(cfg.AllowedIPs, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    chi.NewRouter(),
		sessions:  sessions,
		config:    cfg,
		filter:    filter,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the console router
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.filter.Middleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/campaigns", s.handleList)
		r.Post("/refresh", s.handleRefreshAll)
		r.Get("/events", s.handleEvents)

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Delete("/", s.handleClose)
			r.Post("/open", s.handleOpen)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/recipients", s.handleRecipients)
			r.Put("/delay", s.handleSetDelay)
			r.Post("/{action}", s.handleCommand)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting console API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down console API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
