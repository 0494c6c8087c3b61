package prompt

import (
	"log/slog"
	"time"
)

// retryState tracks the attempts to open one session.
type retryState struct {
	attempts int
	timer    *time.Timer
}

// startAcquire begins the bounded retry loop that opens s. The exclusive
// grab a session needs has no blocking wait, so it is polled on a fixed
// interval until it succeeds or MaxAttempts is reached.
func (m *Manager) startAcquire(s *slot) {
	r := &retryState{}
	s.retry = r
	m.schedule(s, r)
}

func (m *Manager) schedule(s *slot, r *retryState) {
	r.timer = time.AfterFunc(m.opts.RetryInterval, func() {
		m.post(func() { m.attempt(s, r) })
	})
}

// attempt runs one tick of the retry loop. Ticks for a session that is no
// longer active, or whose retry state was replaced, are dropped.
func (m *Manager) attempt(s *slot, r *retryState) {
	if m.current != s || s.retry != r {
		return
	}

	if s.session.Open() {
		s.retry = nil
		s.open = true
		slog.Debug("prompt session open", "request_id", s.ticket.req.ID, "attempts", r.attempts+1)
		return
	}

	r.attempts++
	if r.attempts >= m.opts.MaxAttempts {
		slog.Error("failed creating prompt session, repeated grab failures",
			"request_id", s.ticket.req.ID,
			"attempts", r.attempts)
		s.retry = nil
		m.onSessionClosed(s)
		return
	}

	m.retryLog.Do(func() {
		slog.Debug("prompt grab busy, retrying", "request_id", s.ticket.req.ID, "attempts", r.attempts)
	})
	m.schedule(s, r)
}

// stopAcquire cancels any pending retry of s.
func (m *Manager) stopAcquire(s *slot) {
	r := s.retry
	if r == nil {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	s.retry = nil
}
