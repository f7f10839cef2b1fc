// Package cmd provides the CLI commands for Tribal Memory.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/internal/memconfig"
	"github.com/Aman-CERP/amanmcp/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the tribalmemory CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tribalmemory",
		Short: "Long-term memory service for autonomous agents",
		Long: `Tribal Memory is a long-term memory service for autonomous agents.

It stores facts extracted from agent conversations, deduplicates near-
identical entries, and serves them back through hybrid (vector + text +
graph) recall.

Run 'tribalmemory init' once per agent host, then 'tribalmemory serve'
to start the service.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("tribalmemory version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.tribalmemory/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.tribalmemory/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newServiceCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads the memory service configuration from --config, or
// the default path if unset.
func loadConfig() (*memconfig.Config, error) {
	path := configPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".tribalmemory", "config.yaml")
		}
	}
	return memconfig.Load(path)
}
