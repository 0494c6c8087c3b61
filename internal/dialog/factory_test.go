package dialog

import (
	"testing"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

func TestParseBackend(t *testing.T) {
	for _, s := range []string{"notify", "terminal"} {
		if _, err := ParseBackend(s); err != nil {
			t.Errorf("ParseBackend(%q): %v", s, err)
		}
	}
	if _, err := ParseBackend("gtk"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestFactory_NotifyBackend(t *testing.T) {
	n := newMockNotifier()
	f := &Factory{Backend: BackendNotify, Grab: &fakeGrab{}, Notifier: n}
	f.SetDefaults(Defaults{Expanded: true, Expert: true})

	req := sampleRequest()
	sess, err := f.NewSession(req, func() {})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s := sess.(*Session)

	snap := s.Snapshot()
	if !snap.ShowDetails {
		t.Error("expanded default not applied")
	}
	if last := snap.Targets[len(snap.Targets)-1]; last != "*:443" {
		t.Errorf("expert default not applied, targets = %v", snap.Targets)
	}
	if req.Expanded || req.Expert {
		t.Error("defaults leaked into the caller's request")
	}

	if !s.Open() {
		t.Fatal("Open failed")
	}
	waitFor(t, "notification sent", func() bool { return n.watched(1) })
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestFactory_Errors(t *testing.T) {
	tests := []struct {
		name string
		f    *Factory
	}{
		{"notify without notifier", &Factory{Backend: BackendNotify, Grab: &fakeGrab{}}},
		{"unknown backend", &Factory{Backend: "gtk", Grab: &fakeGrab{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.f.NewSession(&prompt.Request{ID: "x", PID: -1}, func() {}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFactory_TerminalWithoutTTY(t *testing.T) {
	f := &Factory{Backend: BackendTerminal, Grab: &fakeGrab{}, TTY: "/nonexistent/tty"}
	sess, err := f.NewSession(sampleRequest(), func() {})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if sess.Open() {
		t.Error("opened without a terminal")
	}
	if err := sess.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sess.Destroy(); err != nil {
		t.Errorf("Destroy: %v", err)
	}
}
