// Package service manages the systemd user service for fw-prompt.
package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nikicat/fw-prompt/internal/daemon"
)

const unitFileName = "fw-prompt.service"

const unitTemplate = `[Unit]
Description=fw-prompt - firewall connection prompt service
Documentation=https://github.com/nikicat/fw-prompt
After=graphical-session.target

[Service]
Type=notify
NotifyAccess=main
ExecStart=%s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=graphical-session.target
`

// policyTemplate lets one user own the prompt service name on the system
// bus and lets anyone call it. Args: user name, bus name, bus name.
const policyTemplate = `<?xml version="1.0"?>
<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-BUS Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <policy user="%s">
    <allow own="%s"/>
  </policy>
  <policy context="default">
    <allow send_destination="%s"/>
  </policy>
</busconfig>
`

// Options configures service installation.
type Options struct {
	// ConfigPath, if set, adds --config <path> to ExecStart.
	ConfigPath string
	// Bus, if set, adds --bus <bus> to ExecStart.
	Bus string
	// Start the service immediately after enabling.
	Start bool
}

// unitDir returns the systemd user unit directory.
// Uses $XDG_CONFIG_HOME/systemd/user/ with fallback to ~/.config/systemd/user/.
func unitDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "systemd", "user"), nil
}

// UnitPath returns the full path where the unit file is (or would be) installed.
func UnitPath() (string, error) {
	dir, err := unitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, unitFileName), nil
}

// UnitContent renders the unit file for the binary at self.
func UnitContent(self string, opts Options) string {
	args := []string{self, "serve"}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.Bus != "" {
		args = append(args, "--bus", opts.Bus)
	}
	return fmt.Sprintf(unitTemplate, strings.Join(args, " "))
}

// Install writes the systemd user unit file, reloads systemd, and enables the service.
func Install(opts Options) error {
	self, err := executableFunc()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	dir, err := unitDir()
	if err != nil {
		return err
	}
	unitPath := filepath.Join(dir, unitFileName)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(UnitContent(self, opts)), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	fmt.Fprintf(output, "Wrote unit file: %s\n", unitPath)

	if err := systemctlFunc("daemon-reload"); err != nil {
		return err
	}

	if err := systemctlFunc("enable", unitFileName); err != nil {
		return err
	}
	fmt.Fprintf(output, "Enabled %s\n", unitFileName)

	if opts.Start {
		if err := systemctlFunc("start", unitFileName); err != nil {
			return err
		}
		fmt.Fprintf(output, "Started %s\n", unitFileName)
	}

	if opts.Bus == "" || opts.Bus == daemon.BusSystem {
		fmt.Fprintf(output, "The system bus must allow this user to own %s; see 'service policy'.\n", daemon.BusName)
	}
	return nil
}

// Uninstall stops and disables the service, removes the unit file, and reloads systemd.
func Uninstall() error {
	// May not be running.
	_ = systemctlFunc("stop", unitFileName)

	if err := systemctlFunc("disable", unitFileName); err != nil {
		return err
	}
	fmt.Fprintf(output, "Disabled %s\n", unitFileName)

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	fmt.Fprintf(output, "Removed %s\n", unitPath)

	return systemctlFunc("daemon-reload")
}

// Status runs systemctl --user status for the service, printing output directly.
func Status() error {
	cmd := exec.Command("systemctl", "--user", "status", unitFileName)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// systemctl status exits non-zero when inactive; not an error for us.
	cmd.Run() //nolint:errcheck
	return nil
}

// WritePolicy writes a system bus policy granting user the service name.
// It belongs in /etc/dbus-1/system.d/.
func WritePolicy(w io.Writer, user string) error {
	_, err := fmt.Fprintf(w, policyTemplate, user, daemon.BusName, daemon.BusName)
	return err
}

// Replaced in tests.
var (
	systemctlFunc            = systemctlExec
	executableFunc           = resolveExecutable
	output         io.Writer = os.Stdout
)

func resolveExecutable() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(self)
}

func systemctlExec(args ...string) error {
	fullArgs := append([]string{"--user"}, args...)
	cmd := exec.Command("systemctl", fullArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", args[0], err)
	}
	return nil
}
