package dialog

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nikicat/fw-prompt/internal/modal"
	"github.com/nikicat/fw-prompt/internal/procinfo"
	"github.com/nikicat/fw-prompt/internal/prompt"
)

// Backend selects how dialogs are presented.
type Backend string

const (
	BackendNotify   Backend = "notify"
	BackendTerminal Backend = "terminal"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendNotify, BackendTerminal:
		return b, nil
	default:
		return "", fmt.Errorf("unknown dialog backend %q (want %q or %q)", s, BackendNotify, BackendTerminal)
	}
}

// Defaults widen what every dialog shows regardless of the request.
type Defaults struct {
	Expanded bool
	Expert   bool
}

// Factory builds dialog sessions. It implements prompt.SessionFactory.
type Factory struct {
	Backend  Backend
	Grab     modal.Grabber
	Notifier Notifier // BackendNotify
	TTY      string   // BackendTerminal
	Keys     KeyMap
	// Procs looks up the process chain for the details view. Nil skips it.
	Procs *procinfo.Reader

	mu       sync.RWMutex
	defaults Defaults
}

// SetDefaults replaces the defaults applied to sessions created from now on.
func (f *Factory) SetDefaults(d Defaults) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults = d
}

func (f *Factory) NewSession(req *prompt.Request, closed func()) (prompt.Session, error) {
	f.mu.RLock()
	d := f.defaults
	f.mu.RUnlock()

	view := *req
	view.Expanded = view.Expanded || d.Expanded
	view.Expert = view.Expert || d.Expert

	var chain []procinfo.Process
	if f.Procs != nil && req.ProcessKnown() {
		c, err := f.Procs.Chain(req.PID)
		if err != nil {
			slog.Debug("no process chain for prompt", "request_id", req.ID, "pid", req.PID, "error", err)
		}
		chain = c
	}

	s := newSession(req, NewForm(&view, chain), f.Grab, closed)
	switch f.Backend {
	case BackendNotify:
		if f.Notifier == nil {
			return nil, fmt.Errorf("notification backend has no notifier")
		}
		s.view = newNotifyView(f.Notifier, s, req.ID)
	case BackendTerminal:
		keys := f.Keys
		if len(keys.Allow.Keys()) == 0 {
			keys = DefaultKeyMap()
		}
		s.view = newTUIView(s, keys, f.TTY, req.ID)
	default:
		return nil, fmt.Errorf("unknown dialog backend %q", f.Backend)
	}
	return s, nil
}
