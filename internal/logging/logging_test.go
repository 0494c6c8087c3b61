package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSONFollowsLevelVar(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	log := slog.New(NewHandler(&buf, "json", level, false, false))

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	level.Set(slog.LevelDebug)
	log.Debug("shown", "request_id", "r1")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "shown" || entry["request_id"] != "r1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewHandler_PlainTextDropsTime(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "text", slog.LevelInfo, true, true)).Info("hello", "k", "v")

	out := buf.String()
	if !strings.HasPrefix(out, "INF hello") {
		t.Errorf("expected no timestamp, got %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no color escapes, got %q", out)
	}
}

func TestAudit_LogsDecisions(t *testing.T) {
	var buf bytes.Buffer
	a := NewAudit(&buf)

	req := &prompt.Request{
		ID:          "r1",
		Application: "curl",
		Path:        "/usr/bin/curl",
		Proto:       "tcp",
		Address:     "example.com",
		Port:        443,
		PID:         42,
	}
	a.OnEvent(prompt.Event{Type: prompt.EventQueued, Request: req})
	if buf.Len() != 0 {
		t.Fatalf("queued event audited: %s", buf.String())
	}

	a.OnEvent(prompt.Event{Type: prompt.EventResolved, Request: req, Result: prompt.Result{Scope: prompt.ScopeOnce, Rule: "ALLOW|example.com:443"}})
	a.OnEvent(prompt.Event{Type: prompt.EventAbandoned, Request: req, Result: prompt.Abandoned})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)

	if first["msg"] != "prompt_decision" || first["rule"] != "ALLOW|example.com:443" || first["scope"] != "once" {
		t.Errorf("first = %v", first)
	}
	if first["abandoned"] != false {
		t.Errorf("first abandoned = %v", first["abandoned"])
	}
	if second["abandoned"] != true || second["scope"] != "none" {
		t.Errorf("second = %v", second)
	}
}

func TestOpenAudit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a := OpenAudit(path)
	a.LogDecision(t.Context(), &prompt.Request{ID: "r1"}, prompt.Abandoned)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"request_id":"r1"`) {
		t.Errorf("audit file = %s", data)
	}
}

func TestSetup_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "fw-prompt.log")
	level := new(slog.LevelVar)
	closer := Setup(Options{Level: level, Format: "text", File: path})
	slog.Info("to file", "request_id", "r9")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "to file") || strings.Contains(string(data), "\x1b[") {
		t.Errorf("log file = %q", data)
	}
}
