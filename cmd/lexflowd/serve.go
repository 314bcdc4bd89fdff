package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/config"
	lexhttp "github.com/fyrsmithlabs/lexflow/internal/http"
	"github.com/fyrsmithlabs/lexflow/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the lexflow HTTP API on server.host:server.port.

Prometheus metrics are exposed on /metrics and the versioned API under
/api/v1. The process shuts down gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := logging.NewLogger(&cfg.Logging, nil)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return runServe(ctx, cfg, logger)
	},
}

// runServe serves until ctx is done, then drains in-flight requests.
func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) error {
	a, err := newApp(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	srv, err := a.httpServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// httpServer builds the API server over the app's components.
func (a *app) httpServer() (*lexhttp.Server, error) {
	return lexhttp.NewServer(a.orch, a.pipeline, a.validator, a.cfg.Server, a.logger.Named("http"),
		lexhttp.WithGatherer(a.registry),
		lexhttp.WithMetrics(lexhttp.NewMetrics(a.logger)),
		lexhttp.WithHealthCheck("corpus", a.records.Ping),
		lexhttp.WithVersion(version),
	)
}
