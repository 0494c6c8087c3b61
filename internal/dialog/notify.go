package dialog

import (
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"

	"github.com/nikicat/fw-prompt/internal/command"
)

// Notification action keys.
const (
	actionAllow    = "allow"
	actionDeny     = "deny"
	actionScope    = "scope"
	actionRule     = "rule"
	actionTLSGuard = "tlsguard"
	actionDefault  = "default"
)

// actionCommands maps notification actions to the keybinding command they
// stand for.
var actionCommands = map[string]command.Name{
	actionAllow:    command.RuleAllow,
	actionDeny:     command.RuleDeny,
	actionScope:    command.ScopeNext,
	actionRule:     command.RuleNext,
	actionTLSGuard: command.ToggleTLSGuard,
	actionDefault:  command.ToggleDetails,
}

// controls is what a view drives in response to user input.
type controls interface {
	command.Handlers
	Dismiss()
}

// notifyView shows a form as a resident desktop notification. Notifier
// calls run on a worker goroutine in order, so Show and Update never
// wait for the notification server.
type notifyView struct {
	notifier Notifier
	ctl      controls
	reqID    string

	mu      sync.Mutex
	pending *Snapshot
	hidden  bool
	started bool
	wake    chan struct{}
	stopped chan struct{}
}

func newNotifyView(n Notifier, ctl controls, reqID string) *notifyView {
	return &notifyView{
		notifier: n,
		ctl:      ctl,
		reqID:    reqID,
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
	}
}

func (v *notifyView) Show(s Snapshot) error {
	v.mu.Lock()
	v.pending = &s
	if !v.started {
		v.started = true
		go v.run()
	}
	v.mu.Unlock()
	v.signal()
	return nil
}

func (v *notifyView) Update(s Snapshot) error {
	v.mu.Lock()
	v.pending = &s
	v.mu.Unlock()
	v.signal()
	return nil
}

func (v *notifyView) Hide() error {
	v.mu.Lock()
	if v.hidden {
		v.mu.Unlock()
		return nil
	}
	v.hidden = true
	started := v.started
	v.mu.Unlock()
	if started {
		v.signal()
	}
	return nil
}

// Dispose tells the worker to close the notification and returns without
// waiting for the notification server.
func (v *notifyView) Dispose() error {
	return v.Hide()
}

func (v *notifyView) signal() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *notifyView) run() {
	defer close(v.stopped)

	var id uint32
	for range v.wake {
		v.mu.Lock()
		pending, hidden := v.pending, v.hidden
		v.pending = nil
		v.mu.Unlock()

		if pending != nil && !hidden {
			newID, err := v.notifier.Notify(buildNotification(*pending, id))
			if err != nil {
				slog.Error("failed to send prompt notification", "request_id", v.reqID, "error", err)
				if id == 0 {
					// Nothing is on screen and no signal can ever arrive.
					v.ctl.Dismiss()
				}
			} else if id == 0 {
				id = newID
				v.notifier.Watch(id, v.onEvent)
				slog.Debug("sent prompt notification", "request_id", v.reqID, "notification_id", id)
			}
		}

		if hidden {
			if id != 0 {
				v.notifier.Unwatch(id)
				if err := v.notifier.CloseNotification(id); err != nil {
					slog.Debug("failed to close notification", "error", err, "notification_id", id)
				}
			}
			return
		}
	}
}

func (v *notifyView) onEvent(ev NotificationEvent) {
	if ev.Closed {
		if ev.Reason == ClosedExpired || ev.Reason == ClosedDismissed {
			v.ctl.Dismiss()
		}
		return
	}

	name, ok := actionCommands[ev.Action]
	if !ok {
		slog.Debug("unknown notification action", "action", ev.Action, "request_id", v.reqID)
		return
	}
	if err := command.Dispatch(v.ctl, string(name)); err != nil {
		slog.Warn("notification action not dispatched", "action", ev.Action, "error", err)
	}
}

func buildNotification(s Snapshot, replaces uint32) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Rule:</b> %s\n", html.EscapeString(s.Rule()))
	fmt.Fprintf(&b, "<b>Scope:</b> %s", s.Scope)
	if s.TLSGuard {
		fmt.Fprintf(&b, "\n<b>TLS only:</b> %s", onOff(s.TLSOnly))
	}
	for _, d := range s.Details {
		fmt.Fprintf(&b, "\n<i>%s:</i> %s", html.EscapeString(d.Label), html.EscapeString(d.Value))
	}

	actions := []string{
		actionDefault, "",
		actionAllow, "Allow",
		actionDeny, "Deny",
		actionScope, "Scope",
		actionRule, "Target",
	}
	if s.TLSGuard {
		actions = append(actions, actionTLSGuard, "TLS only")
	}

	return Notification{
		ReplacesID: replaces,
		Summary:    s.Title,
		Body:       b.String(),
		Icon:       s.Icon,
		Actions:    actions,
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
