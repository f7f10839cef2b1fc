package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

// newServiceCmd wraps the host OS's service manager (systemd on Linux,
// launchd on macOS) so 'tribalmemory serve' can run as a background
// service. Installing/uninstalling unit files is out of this module's
// core contracts (spec.md §1's service-management-scripts Non-goal);
// this is a thin wrapper, not a general service manager.
func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install, start, stop, or inspect the background service",
	}
	cmd.AddCommand(newServiceInstallCmd())
	cmd.AddCommand(newServiceStartCmd())
	cmd.AddCommand(newServiceStopCmd())
	cmd.AddCommand(newServiceStatusCmd())
	cmd.AddCommand(newServiceUninstallCmd())
	return cmd
}

func newServiceInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install a service-manager unit that runs 'tribalmemory serve'",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return installServiceUnit(cmd)
		},
	}
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the installed service-manager unit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return uninstallServiceUnit(cmd)
		},
	}
}

func newServiceStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the installed service via the host service manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return controlService(cmd, "start")
		},
	}
}

func newServiceStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running service via the host service manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return controlService(cmd, "stop")
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the service is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return controlService(cmd, "status")
		},
	}
}

const serviceUnitName = "com.tribalmemory.serve"

func installServiceUnit(cmd *cobra.Command) error {
	binPath, err := serverBinaryPath()
	if err != nil {
		return fmt.Errorf("resolve server binary: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return installLaunchdPlist(cmd, binPath)
	case "linux":
		return installSystemdUnit(cmd, binPath)
	default:
		return fmt.Errorf("service install is not supported on %s; run 'tribalmemory serve' directly", runtime.GOOS)
	}
}

func uninstallServiceUnit(cmd *cobra.Command) error {
	path, err := serviceUnitPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
	return nil
}

func serviceUnitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", serviceUnitName+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", "tribalmemory.service"), nil
	default:
		return "", fmt.Errorf("service unit path is not defined on %s", runtime.GOOS)
	}
}

func installLaunchdPlist(cmd *cobra.Command, binPath string) error {
	path, err := serviceUnitPath()
	if err != nil {
		return err
	}
	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>%s</string>
  <key>ProgramArguments</key>
  <array>
    <string>%s</string>
    <string>serve</string>
  </array>
  <key>RunAtLoad</key>
  <true/>
  <key>KeepAlive</key>
  <true/>
</dict>
</plist>
`, serviceUnitName, binPath)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("write launchd plist: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s\nrun 'tribalmemory service start' to load it\n", path)
	return nil
}

func installSystemdUnit(cmd *cobra.Command, binPath string) error {
	path, err := serviceUnitPath()
	if err != nil {
		return err
	}
	unit := fmt.Sprintf(`[Unit]
Description=Tribal Memory service

[Service]
ExecStart=%s serve
Restart=on-failure

[Install]
WantedBy=default.target
`, binPath)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write systemd unit: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s\nrun 'tribalmemory service start' to enable it\n", path)
	return nil
}

// controlService shells out to the host's service manager CLI.
// Actually starting/stopping/querying is the service manager's job;
// this only translates the subcommand into the right invocation.
func controlService(cmd *cobra.Command, action string) error {
	switch runtime.GOOS {
	case "darwin":
		path, err := serviceUnitPath()
		if err != nil {
			return err
		}
		var args []string
		switch action {
		case "start":
			args = []string{"load", "-w", path}
		case "stop":
			args = []string{"unload", path}
		case "status":
			args = []string{"list", serviceUnitName}
		}
		return runHostCommand(cmd, "launchctl", args...)

	case "linux":
		var args []string
		switch action {
		case "start":
			args = []string{"--user", "start", "tribalmemory.service"}
		case "stop":
			args = []string{"--user", "stop", "tribalmemory.service"}
		case "status":
			args = []string{"--user", "status", "tribalmemory.service"}
		}
		return runHostCommand(cmd, "systemctl", args...)

	default:
		return fmt.Errorf("service %s is not supported on %s; run 'tribalmemory serve' directly", action, runtime.GOOS)
	}
}

func runHostCommand(cmd *cobra.Command, name string, args ...string) error {
	c := exec.CommandContext(cmd.Context(), name, args...)
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	return c.Run()
}
