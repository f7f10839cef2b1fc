package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/memconfig"
)

// mcpServerConfig is the generic shape external agent hosts expect for
// a registered stdio MCP server: a command to exec and its arguments.
type mcpServerConfig struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
}

// conversationClientConfig mirrors a conversation client's (e.g. a
// desktop chat app's) MCP server registry.
type conversationClientConfig struct {
	MCPServers map[string]mcpServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force   bool
		global  bool
		skipIntegrations bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file and register with agent hosts",
		Long: `Write ~/.tribalmemory/config.yaml (unless --config points elsewhere)
and, unless --skip-integrations is set, register the server with a
conversation client and a terminal agent so they can launch it over
stdio.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force, global, skipIntegrations)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&global, "global", false, "Accepted but has no effect: the conversation client is always registered at user scope and the terminal agent in the current directory")
	cmd.Flags().BoolVar(&skipIntegrations, "skip-integrations", false, "Write the config file only, skip agent host registration")

	return cmd
}

func runInit(cmd *cobra.Command, force, global, skipIntegrations bool) error {
	out := cmd.OutOrStdout()

	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".tribalmemory", "config.yaml")
	}

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "configuration already exists at %s (use --force to overwrite)\n", path)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := memconfig.Default().WriteYAML(path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "wrote configuration to %s\n", path)
	}

	if skipIntegrations {
		return nil
	}

	binPath, err := serverBinaryPath()
	if err != nil {
		fmt.Fprintf(out, "could not resolve server binary path: %v (skipping integration registration)\n", err)
		return nil
	}

	if err := registerConversationClient(binPath, global); err != nil {
		fmt.Fprintf(out, "conversation client registration skipped: %v\n", err)
	} else {
		fmt.Fprintln(out, "registered with the conversation client")
	}

	if err := registerTerminalAgent(binPath); err != nil {
		fmt.Fprintf(out, "terminal agent registration skipped: %v\n", err)
	} else {
		fmt.Fprintln(out, "registered with the terminal agent")
	}

	return nil
}

// serverBinaryPath resolves the absolute path of the running binary,
// following symlinks, so registered hosts invoke the right executable
// regardless of the working directory they launch from.
func serverBinaryPath() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(execPath); err == nil {
		return real, nil
	}
	return filepath.Abs(execPath)
}

// registerConversationClient writes/updates the conversation client's
// MCP server registry (a JSON config analogous to a desktop chat
// app's) so it can launch tribalmemory over stdio.
func registerConversationClient(binPath string, global bool) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	_ = global // registration is always user-scoped for this host
	path := filepath.Join(home, ".config", "tribalmemory", "conversation-client.json")

	cfg := conversationClientConfig{MCPServers: map[string]mcpServerConfig{}}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]mcpServerConfig{}
	}
	cfg.MCPServers["tribalmemory"] = mcpServerConfig{Command: binPath, Args: []string{"mcp"}}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// registerTerminalAgent writes/updates the terminal agent's project
// config (.mcp.json in the current directory).
func registerTerminalAgent(binPath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	path := filepath.Join(cwd, ".mcp.json")

	cfg := conversationClientConfig{MCPServers: map[string]mcpServerConfig{}}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]mcpServerConfig{}
	}
	cfg.MCPServers["tribalmemory"] = mcpServerConfig{Command: binPath, Args: []string{"mcp"}, Cwd: cwd}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
