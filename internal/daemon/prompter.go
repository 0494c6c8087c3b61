package daemon

import (
	"context"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// Queue is the part of prompt.Manager driven over D-Bus.
type Queue interface {
	Enqueue(req *prompt.Request, reply prompt.ReplyFunc) string
	Cancel(id string)
	CloseAll()
	Done() <-chan struct{}
}

// ContextFunc returns a context that is cancelled when sender leaves the
// bus. The returned cancel func must be called once the call completes.
type ContextFunc func(sender string) (context.Context, context.CancelFunc)

// Prompter is the object exported as com.subgraph.FirewallPrompt.
type Prompter struct {
	queue    Queue
	contexts ContextFunc
}

// NewPrompter creates a Prompter over queue. A nil contexts func gives
// every call a context that is never cancelled by the caller leaving.
func NewPrompter(queue Queue, contexts ContextFunc) *Prompter {
	if contexts == nil {
		contexts = func(string) (context.Context, context.CancelFunc) {
			return context.WithCancel(context.Background())
		}
	}
	return &Prompter{queue: queue, contexts: contexts}
}

// RequestPrompt queues a connection prompt and blocks until the user
// decides or the prompt is abandoned. godbus runs every call on its own
// goroutine, so waiting here does not stall other calls.
func (p *Prompter) RequestPrompt(msg dbus.Message,
	application, icon, path, address string, port int32,
	ip, origin, proto string, uid, gid int32, user, group string,
	pid int32, sandbox string, tlsguard bool, optstring string,
	expanded, expert bool, action int32,
) (int32, string, *dbus.Error) {
	sender, _ := msg.Headers[dbus.FieldSender].Value().(string)

	req := &prompt.Request{
		Sender:      sender,
		Application: application,
		Icon:        icon,
		Path:        path,
		Address:     address,
		Port:        port,
		IP:          ip,
		Origin:      origin,
		Proto:       proto,
		UID:         uid,
		GID:         gid,
		User:        user,
		Group:       group,
		PID:         pid,
		Sandbox:     sandbox,
		TLSGuard:    tlsguard,
		OptString:   optstring,
		Expanded:    expanded,
		Expert:      expert,
		Action:      action,
	}
	if err := NormalizeRequest(req); err != nil {
		slog.Warn("rejected prompt request", "sender", sender, "application", application, "error", err)
		return 0, "", InvalidArgs(err)
	}

	ctx, cancel := p.contexts(sender)
	defer cancel()

	result := p.ask(ctx, req)
	return int32(result.Scope), result.Rule, nil
}

// ask enqueues req and waits for its reply. If ctx ends first the request
// is withdrawn from the queue.
func (p *Prompter) ask(ctx context.Context, req *prompt.Request) prompt.Result {
	replies := make(chan prompt.Result, 1)
	id := p.queue.Enqueue(req, func(r prompt.Result) {
		replies <- r
	})

	select {
	case r := <-replies:
		return r
	case <-ctx.Done():
		slog.Info("prompt caller went away", "request_id", id, "sender", req.Sender)
		p.queue.Cancel(id)
		return prompt.Abandoned
	case <-p.queue.Done():
		select {
		case r := <-replies:
			return r
		default:
			return prompt.Abandoned
		}
	}
}

// ClosePrompt closes the visible prompt and abandons every queued one.
func (p *Prompter) ClosePrompt() *dbus.Error {
	slog.Info("close requested over D-Bus")
	p.queue.CloseAll()
	return nil
}

// TestPrompt raises a sample prompt. Its decision is only logged.
func (p *Prompter) TestPrompt() *dbus.Error {
	req := SampleRequest()
	id := p.queue.Enqueue(req, func(r prompt.Result) {
		slog.Info("test prompt answered", "request_id", req.ID, "scope", r.Scope, "rule", r.Rule)
	})
	slog.Info("test prompt requested", "request_id", id)
	return nil
}
