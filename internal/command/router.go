package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// Target runs fn against the visible session, or nil when there is none.
// It reports false when it no longer accepts work.
type Target interface {
	Do(fn func(prompt.Session)) bool
}

// Router forwards commands to whatever session is active when the command
// is processed.
type Router struct {
	target Target
}

// NewRouter creates a router over target.
func NewRouter(target Target) *Router {
	return &Router{target: target}
}

// Route delivers the named command. It reports whether a session consumed
// it. With no active session the command is dropped.
func (r *Router) Route(ctx context.Context, name string) (bool, error) {
	fn, err := Lookup(name)
	if err != nil {
		slog.Warn("unknown prompt command", "command", name)
		return false, fmt.Errorf("%w: %q", err, name)
	}

	handled := make(chan bool, 1)
	ok := r.target.Do(func(s prompt.Session) {
		if s == nil {
			handled <- false
			return
		}
		h, ok := s.(Handlers)
		if !ok {
			slog.Warn("active prompt session does not accept commands", "command", name)
			handled <- true
			return
		}
		fn(h)
		handled <- true
	})
	if !ok {
		return false, prompt.ErrShutdown
	}

	select {
	case got := <-handled:
		if !got {
			slog.Debug("no active prompt for command", "command", name)
		}
		return got, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
