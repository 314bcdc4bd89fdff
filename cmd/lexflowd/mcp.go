package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/logging"
	"github.com/fyrsmithlabs/lexflow/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve workflow tools over MCP on stdio",
	Long: `Serve lexflow as a Model Context Protocol server on stdin/stdout.

Logs are written to stderr so stdout carries only protocol messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := logging.NewStderrLogger(&cfg.Logging, nil)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(context.Background()); err != nil {
				logger.Warn("shutdown incomplete", zap.Error(err))
			}
		}()

		srv, err := a.mcpServer()
		if err != nil {
			return err
		}
		logger.Info("mcp server running on stdio", zap.String("version", version))
		return srv.Run(ctx)
	},
}

func (a *app) mcpServer() (*mcp.Server, error) {
	return mcp.NewServer(mcp.Config{Name: "lexflow", Version: version},
		a.orch, a.pipeline, a.validator, a.logger.Named("mcp"))
}
