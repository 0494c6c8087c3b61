package dialog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nikicat/fw-prompt/internal/modal"
	"github.com/nikicat/fw-prompt/internal/prompt"
)

// view presents a form to the user. Show and Update must not wait for
// user input.
type view interface {
	Show(Snapshot) error
	Update(Snapshot) error
	Hide() error
	// Dispose releases resources held by the view. The view is not used
	// afterwards.
	Dispose() error
}

// Session is a prompt.Session that shows a Form through a view while
// holding the modal grab. It also accepts keybinding commands.
type Session struct {
	req    *prompt.Request
	grab   modal.Grabber
	closed func()

	mu       sync.Mutex
	form     *Form
	view     view
	visible  bool
	finished bool
	disposed bool
	outcome  *prompt.Result
}

func newSession(req *prompt.Request, form *Form, grab modal.Grabber, closed func()) *Session {
	return &Session{
		req:    req,
		form:   form,
		grab:   grab,
		closed: closed,
	}
}

// Open takes the modal grab and shows the dialog. It reports false while
// another dialog holds the grab.
func (s *Session) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.visible {
		return true
	}
	if s.finished || s.disposed {
		return false
	}

	ok, err := s.grab.TryAcquire()
	if err != nil {
		slog.Warn("modal grab failed", "request_id", s.req.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	if err := s.view.Show(s.form.Snapshot()); err != nil {
		slog.Warn("failed to show prompt dialog", "request_id", s.req.ID, "error", err)
		if err := s.grab.Release(); err != nil {
			slog.Error("failed to release modal grab", "request_id", s.req.ID, "error", err)
		}
		return false
	}
	s.visible = true
	return true
}

// Close hides the dialog and drops the modal grab.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished = true
	if !s.visible {
		return nil
	}
	s.visible = false

	var errs []error
	if err := s.view.Hide(); err != nil {
		errs = append(errs, fmt.Errorf("hide dialog: %w", err))
	}
	if err := s.grab.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release modal grab: %w", err))
	}
	return errors.Join(errs...)
}

// Destroy releases the view. The session cannot be reopened.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}
	s.disposed = true
	s.finished = true
	return s.view.Dispose()
}

// Outcome returns the decision, if the user made one.
func (s *Session) Outcome() (prompt.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return prompt.Result{}, false
	}
	return *s.outcome, true
}

// Snapshot returns the current rendering of the form.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Snapshot()
}

// edit applies fn to the form of a visible, undecided session and
// re-renders it.
func (s *Session) edit(fn func(*Form)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.visible || s.finished {
		return
	}
	fn(s.form)
	if err := s.view.Update(s.form.Snapshot()); err != nil {
		slog.Warn("failed to update prompt dialog", "request_id", s.req.ID, "error", err)
	}
}

// decide records the user's decision and closes the session.
func (s *Session) decide(allow bool) {
	s.mu.Lock()
	if !s.visible || s.finished {
		s.mu.Unlock()
		return
	}
	s.form.SetAllow(allow)
	r := s.form.Result()
	s.outcome = &r
	s.finished = true
	s.mu.Unlock()

	slog.Debug("prompt decided", "request_id", s.req.ID, "scope", r.Scope, "rule", r.Rule)
	s.closed()
}

// Dismiss closes the session without a decision.
func (s *Session) Dismiss() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	slog.Debug("prompt dismissed", "request_id", s.req.ID)
	s.closed()
}

func (s *Session) OnPromptScopePrevious()  { s.edit((*Form).ScopePrevious) }
func (s *Session) OnPromptScopeNext()      { s.edit((*Form).ScopeNext) }
func (s *Session) OnPromptRuleNext()       { s.edit((*Form).RuleNext) }
func (s *Session) OnPromptRulePrevious()   { s.edit((*Form).RulePrevious) }
func (s *Session) OnPromptToggleDetails()  { s.edit((*Form).ToggleDetails) }
func (s *Session) OnPromptToggleTlsguard() { s.edit((*Form).ToggleTLSGuard) }
func (s *Session) OnPromptRuleAllow()      { s.decide(true) }
func (s *Session) OnPromptRuleDeny()       { s.decide(false) }
