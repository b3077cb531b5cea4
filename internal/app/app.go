package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/campaignctl/internal/api"
	"github.com/foxzi/campaignctl/internal/config"
	"github.com/foxzi/campaignctl/internal/credentials"
	"github.com/foxzi/campaignctl/internal/ipfilter"
	"github.com/foxzi/campaignctl/internal/metrics"
	"github.com/foxzi/campaignctl/internal/session"
	"github.com/foxzi/campaignctl/internal/transport"
)

// App is the main application
type App struct {
	config        *config.Config
	store         *credentials.BoltStore
	creds         credentials.Provider
	sessions      *session.Manager
	apiServer     *api.Server
	metricsServer *metrics.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	// Credential store written by "campaignctl login"
	store, err := credentials.OpenBoltStore(cfg.Credentials.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	var creds credentials.Provider = store
	if cfg.Credentials.Token != "" {
		creds = credentials.Chain{credentials.NewStatic(cfg.Credentials.Token), store}
	}

	m := metrics.New()
	metrics.SetGlobal(m)

	client := transport.NewClient(
		cfg.Remote.BaseURL,
		creds,
		cfg.Remote.Timeout,
		logger.With("component", "transport"),
	)

	managerCfg := session.ManagerConfig{RefreshConcurrency: cfg.Poller.RefreshConcurrency}
	if cfg.Poller.Enabled {
		managerCfg.PollInterval = cfg.Poller.Interval
	}
	sessions := session.NewManager(client, creds, nil, managerCfg, logger.With("component", "sessions"))

	a := &App{
		config:   cfg,
		store:    store,
		creds:    creds,
		sessions: sessions,
		logger:   logger,
	}

	if cfg.API.Enabled {
		a.apiServer, err = api.NewServer(sessions, &cfg.API, logger.With("component", "api"))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create console server: %w", err)
		}
	}

	if cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger.With("component", "metrics"))
		filter, err := ipfilter.New(cfg.Metrics.AllowedIPs, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create metrics filter: %w", err)
		}
		a.metricsServer.SetFilter(filter)
	}

	return a, nil
}

// Sessions returns the campaign session manager
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Store returns the credential store
func (a *App) Store() *credentials.BoltStore {
	return a.store
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Run opens the given campaigns, starts the servers and waits for shutdown
func (a *App) Run(ctx context.Context, campaignIDs ...string) error {
	a.logger.Info("starting campaignctl",
		"remote", a.config.Remote.BaseURL,
		"api_enabled", a.config.API.Enabled,
		"api_addr", a.config.API.ListenAddr,
		"poller_enabled", a.config.Poller.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, id := range campaignIDs {
		s, err := a.sessions.Open(id)
		if err != nil {
			a.Close()
			return err
		}
		if _, err := s.Load(ctx, false); err != nil {
			a.logger.Warn("initial load failed", "campaign_id", id, "error", err)
		}
	}

	errCh := make(chan error, 2)

	if a.apiServer != nil {
		go func() {
			if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("console server: %w", err)
			}
		}()
	}

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("console server shutdown error", "error", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.Close()
	a.logger.Info("shutdown complete")
	return nil
}

// Close closes every session and the credential store
func (a *App) Close() {
	a.sessions.CloseAll()
	if err := a.store.Close(); err != nil {
		a.logger.Error("credential store close error", "error", err)
	}
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
