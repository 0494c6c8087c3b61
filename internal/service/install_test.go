package service

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- test helpers ---

func mockSystemctl(t *testing.T, fail string) *[]string {
	t.Helper()
	orig := systemctlFunc
	var calls []string
	systemctlFunc = func(args ...string) error {
		calls = append(calls, strings.Join(args, " "))
		if args[0] == fail {
			return errors.New("systemctl " + fail + " failed")
		}
		return nil
	}
	t.Cleanup(func() { systemctlFunc = orig })
	return &calls
}

func mockEnvironment(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	origExec, origOut := executableFunc, output
	executableFunc = func() (string, error) { return "/usr/bin/fw-prompt", nil }
	output = io.Discard
	t.Cleanup(func() {
		executableFunc = origExec
		output = origOut
	})
	return tmpDir
}

func TestUnitContent(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"defaults", Options{}, "ExecStart=/usr/bin/fw-prompt serve\n"},
		{"config", Options{ConfigPath: "/etc/fw.yaml"}, "ExecStart=/usr/bin/fw-prompt serve --config /etc/fw.yaml\n"},
		{"bus", Options{Bus: "session"}, "ExecStart=/usr/bin/fw-prompt serve --bus session\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnitContent("/usr/bin/fw-prompt", tt.opts)
			if !strings.Contains(got, tt.want) {
				t.Errorf("unit missing %q:\n%s", tt.want, got)
			}
			if !strings.Contains(got, "Type=notify") {
				t.Error("unit should use Type=notify")
			}
		})
	}
}

func TestInstall(t *testing.T) {
	tmpDir := mockEnvironment(t)
	calls := mockSystemctl(t, "")

	if err := Install(Options{Start: true}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	unitPath := filepath.Join(tmpDir, "systemd", "user", unitFileName)
	content, err := os.ReadFile(unitPath)
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if !strings.Contains(string(content), "ExecStart=/usr/bin/fw-prompt serve") {
		t.Errorf("unexpected unit:\n%s", content)
	}

	want := []string{"daemon-reload", "enable " + unitFileName, "start " + unitFileName}
	if diff := cmp.Diff(want, *calls); diff != "" {
		t.Errorf("systemctl calls mismatch (-want +got):\n%s", diff)
	}

	if got, _ := UnitPath(); got != unitPath {
		t.Errorf("UnitPath() = %s, want %s", got, unitPath)
	}
}

func TestInstall_NoStart(t *testing.T) {
	mockEnvironment(t)
	calls := mockSystemctl(t, "")

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	want := []string{"daemon-reload", "enable " + unitFileName}
	if diff := cmp.Diff(want, *calls); diff != "" {
		t.Errorf("systemctl calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInstall_EnableFails(t *testing.T) {
	mockEnvironment(t)
	mockSystemctl(t, "enable")

	if err := Install(Options{Start: true}); err == nil {
		t.Fatal("expected an error when enable fails")
	}
}

func TestUninstall(t *testing.T) {
	tmpDir := mockEnvironment(t)
	calls := mockSystemctl(t, "stop")

	dir := filepath.Join(tmpDir, "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	unitPath := filepath.Join(dir, unitFileName)
	if err := os.WriteFile(unitPath, []byte("[Unit]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// A failing stop (service not running) is ignored.
	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() error: %v", err)
	}
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Error("unit file not removed")
	}

	want := []string{"stop " + unitFileName, "disable " + unitFileName, "daemon-reload"}
	if diff := cmp.Diff(want, *calls); diff != "" {
		t.Errorf("systemctl calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUninstall_MissingUnit(t *testing.T) {
	mockEnvironment(t)
	mockSystemctl(t, "")

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() without a unit file: %v", err)
	}
}

func TestWritePolicy(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePolicy(&buf, "alice"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`<policy user="alice">`,
		`<allow own="com.subgraph.FirewallPrompt"/>`,
		`<allow send_destination="com.subgraph.FirewallPrompt"/>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("policy missing %q:\n%s", want, out)
		}
	}
}
