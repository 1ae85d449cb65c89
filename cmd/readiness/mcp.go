package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/readiness/internal/logging"
	mcpserver "github.com/felixgeelhaar/readiness/internal/mcp"
	"github.com/felixgeelhaar/readiness/internal/scoring"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the scoring tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol
			logging.Stderr(logging.ParseLevel(cfg.Daemon.LogLevel))

			engine, err := scoring.NewEngine(cfg.Scoring, slog.Default())
			if err != nil {
				return exitError(3, "invalid scoring policy: %v", err)
			}

			srv := mcpserver.NewServer(mcpserver.Config{Engine: engine, Version: Version})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.ServeStdio(ctx)
		},
	}
}
