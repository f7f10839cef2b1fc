package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/memory"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory service and keep it resident",
		Long: `Build the memory service singleton (embedding provider, vector/BM25/
graph stores, dedup gate, retrieval pipeline) and keep it resident
until interrupted.

This is the long-running process the 'service' subcommand installs as
a background daemon. It exposes no request interface of its own; use
'mcp' instead to run the service over stdio for a single agent host.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd)
		},
	}
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svc, err := memory.Get(cfg)
	if err != nil {
		return fmt.Errorf("start memory service: %w", err)
	}
	_ = svc

	slog.Info("memory service ready", slog.String("instance_id", cfg.InstanceID))
	fmt.Fprintf(cmd.OutOrStdout(), "tribalmemory serving (instance=%s); press Ctrl+C to stop\n", cfg.InstanceID)

	<-ctx.Done()
	slog.Info("memory service stopping")
	return nil
}
