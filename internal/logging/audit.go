package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// Audit records every answered prompt as a JSON line. It implements
// prompt.Observer.
type Audit struct {
	*slog.Logger
	closer io.Closer
}

// NewAudit creates an audit logger writing JSON to w.
func NewAudit(w io.Writer) *Audit {
	return &Audit{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
		closer: nopCloser{},
	}
}

// OpenAudit writes to a size-rotated file at path, or to stderr when path
// is empty.
func OpenAudit(path string) *Audit {
	if path == "" {
		return NewAudit(os.Stderr)
	}
	lj := newRotatingFile(path)
	a := NewAudit(lj)
	a.closer = lj
	return a
}

// Close flushes the underlying file.
func (a *Audit) Close() error {
	return a.closer.Close()
}

// OnEvent implements prompt.Observer.
func (a *Audit) OnEvent(e prompt.Event) {
	switch e.Type {
	case prompt.EventResolved, prompt.EventAbandoned:
	default:
		return
	}
	a.LogDecision(context.Background(), e.Request, e.Result)
}

// LogDecision logs one reply sent to a prompt caller.
func (a *Audit) LogDecision(ctx context.Context, req *prompt.Request, result prompt.Result) {
	attrs := []slog.Attr{
		slog.String("request_id", req.ID),
		slog.String("application", req.Application),
		slog.String("path", req.Path),
		slog.String("proto", req.Proto),
		slog.String("address", req.Address),
		slog.Int("port", int(req.Port)),
		slog.Int("pid", int(req.PID)),
		slog.String("scope", result.Scope.String()),
		slog.String("rule", result.Rule),
		slog.Bool("abandoned", result.IsAbandoned()),
	}
	if req.IP != "" {
		attrs = append(attrs, slog.String("ip", req.IP))
	}
	if req.Sandbox != "" {
		attrs = append(attrs, slog.String("sandbox", req.Sandbox))
	}
	if req.Sender != "" {
		attrs = append(attrs, slog.String("sender", req.Sender))
	}
	a.LogAttrs(ctx, slog.LevelInfo, "prompt_decision", attrs...)
}
