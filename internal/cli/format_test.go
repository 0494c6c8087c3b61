package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFormatStatus_Idle(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(&buf, false).FormatStatus(&Status{Running: true, Version: "devel"}); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"running (devel)", "Active:  none", "Queued:  none"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatus_Queue(t *testing.T) {
	st := &Status{
		Running: true,
		Version: "v1",
		Active:  &Prompt{ID: "0123456789", Application: "curl", Address: "example.com", Port: 443, CreatedAt: time.Now()},
		Queued: []Prompt{
			{ID: "abcdef", Application: "wget", Proto: "tcp", IP: "10.0.0.1", Port: 80, PID: -1, CreatedAt: time.Now()},
		},
	}

	var buf bytes.Buffer
	if err := NewFormatter(&buf, false).FormatStatus(st); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"0123456…", "example.com:443", "Queued:  1", "APPLICATION", "10.0.0.1:80", "wget"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatus_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(&buf, true).FormatStatus(&Status{Running: true, Queued: []Prompt{}}); err != nil {
		t.Fatal(err)
	}

	var got Status
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !got.Running {
		t.Error("expected running=true")
	}
}

func TestFormatHistory(t *testing.T) {
	entries := []HistoryEntry{
		{
			Prompt:     Prompt{ID: "req-1", Application: "curl", Address: "example.com", Port: 443},
			Resolution: "decided",
			Scope:      "permanent",
			Rule:       "ALLOW|example.com:443",
			ResolvedAt: time.Now().Add(-time.Minute),
		},
		{
			Prompt:     Prompt{ID: "req-2", Application: "ssh", Address: "git.example.org", Port: 22},
			Resolution: "abandoned",
			Scope:      "none",
			ResolvedAt: time.Now(),
		},
	}

	var buf bytes.Buffer
	if err := NewFormatter(&buf, false).FormatHistory(entries); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], "ALLOW|example.com:443") || !strings.Contains(lines[2], "1m0s ago") {
		t.Errorf("unexpected first row: %q", lines[2])
	}
	if !strings.Contains(lines[3], "abandoned") || !strings.Contains(lines[3], " - ") {
		t.Errorf("unexpected second row: %q", lines[3])
	}
}

func TestFormatHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(&buf, false).FormatHistory(nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "No history entries" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		handled bool
		asJSON  bool
		want    string
	}{
		{true, false, "prompt-rule-allow: delivered\n"},
		{false, false, "prompt-rule-allow: no prompt visible\n"},
		{true, true, `{"command":"prompt-rule-allow","handled":true}` + "\n"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		if err := NewFormatter(&buf, tt.asJSON).FormatCommand("prompt-rule-allow", tt.handled); err != nil {
			t.Fatal(err)
		}
		if buf.String() != tt.want {
			t.Errorf("FormatCommand(%v, json=%v) = %q, want %q", tt.handled, tt.asJSON, buf.String(), tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 8); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("0123456789", 8); got != "0123456…" {
		t.Errorf("truncate = %q", got)
	}
}

func TestFormatPID(t *testing.T) {
	if got := formatPID(-1); got != "-" {
		t.Errorf("formatPID(-1) = %q", got)
	}
	if got := formatPID(42); got != "42" {
		t.Errorf("formatPID(42) = %q", got)
	}
}
