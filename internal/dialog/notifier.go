package dialog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"

	appName = "fw-prompt"
)

// NotificationClosed reasons.
const (
	ClosedExpired   uint32 = 1
	ClosedDismissed uint32 = 2
	ClosedByCall    uint32 = 3
)

// Notification is one call to org.freedesktop.Notifications.Notify.
type Notification struct {
	// ReplacesID updates an existing notification in place when non-zero.
	ReplacesID uint32
	Summary    string
	Body       string
	Icon       string
	// Actions holds alternating (key, label) pairs.
	Actions []string
}

// NotificationEvent is a signal emitted for one notification.
type NotificationEvent struct {
	ID     uint32
	Action string // set for ActionInvoked
	Closed bool
	Reason uint32 // set for NotificationClosed
}

// Notifier sends desktop notifications and routes their signals.
type Notifier interface {
	Notify(n Notification) (uint32, error)
	CloseNotification(id uint32) error
	// Watch registers fn for signals about notification id.
	Watch(id uint32, fn func(NotificationEvent))
	Unwatch(id uint32)
}

// DBusNotifier talks to the notification server over a private session bus
// connection. It reconnects if the connection drops.
type DBusNotifier struct {
	dial func() (*dbus.Conn, error)

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	done    chan struct{}

	watchMu  sync.Mutex
	watchers map[uint32]func(NotificationEvent)
}

// NewDBusNotifier connects with dial, or to the session bus when dial is
// nil, and starts listening for notification signals.
func NewDBusNotifier(dial func() (*dbus.Conn, error)) (*DBusNotifier, error) {
	if dial == nil {
		dial = func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }
	}
	n := &DBusNotifier{
		dial:     dial,
		signals:  make(chan *dbus.Signal, 16),
		done:     make(chan struct{}),
		watchers: make(map[uint32]func(NotificationEvent)),
	}

	if err := n.connect(); err != nil {
		return nil, err
	}

	go n.processSignals(n.signals)

	return n, nil
}

// connect must be called with n.mu held, or during construction.
func (n *DBusNotifier) connect() error {
	conn, err := n.dial()
	if err != nil {
		return fmt.Errorf("connect to notification bus: %w", err)
	}

	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(notifyPath),
			dbus.WithMatchInterface(notifyInterface),
			dbus.WithMatchMember(member),
		); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe to %s: %w", member, err)
		}
	}

	conn.Signal(n.signals)
	n.conn = conn
	return nil
}

// reconnect must be called with n.mu held.
func (n *DBusNotifier) reconnect() error {
	if n.conn != nil {
		n.conn.Close()
	}
	n.signals = make(chan *dbus.Signal, 16)
	if err := n.connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	go n.processSignals(n.signals)
	slog.Info("reconnected to notification bus")
	return nil
}

// Stop stops the signal listener and closes the connection.
func (n *DBusNotifier) Stop() {
	close(n.done)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
	}
}

func (n *DBusNotifier) processSignals(ch <-chan *dbus.Signal) {
	for {
		select {
		case <-n.done:
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := parseSignal(sig)
			if !ok {
				continue
			}
			n.watchMu.Lock()
			fn := n.watchers[ev.ID]
			n.watchMu.Unlock()
			if fn != nil {
				fn(ev)
			}
		}
	}
}

func parseSignal(sig *dbus.Signal) (NotificationEvent, bool) {
	if len(sig.Body) != 2 {
		return NotificationEvent{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return NotificationEvent{}, false
	}
	switch sig.Name {
	case notifyInterface + ".ActionInvoked":
		key, ok := sig.Body[1].(string)
		if !ok {
			return NotificationEvent{}, false
		}
		return NotificationEvent{ID: id, Action: key}, true
	case notifyInterface + ".NotificationClosed":
		reason, ok := sig.Body[1].(uint32)
		if !ok {
			return NotificationEvent{}, false
		}
		return NotificationEvent{ID: id, Closed: true, Reason: reason}, true
	}
	return NotificationEvent{}, false
}

func (n *DBusNotifier) Watch(id uint32, fn func(NotificationEvent)) {
	n.watchMu.Lock()
	defer n.watchMu.Unlock()
	n.watchers[id] = fn
}

func (n *DBusNotifier) Unwatch(id uint32) {
	n.watchMu.Lock()
	defer n.watchMu.Unlock()
	delete(n.watchers, id)
}

// Notify sends or replaces a notification. If the connection is dead it
// reconnects and retries once.
func (n *DBusNotifier) Notify(notif Notification) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id, err := n.doNotify(notif)
	if err != nil && errors.Is(err, dbus.ErrClosed) {
		if reconnErr := n.reconnect(); reconnErr != nil {
			return 0, fmt.Errorf("notify call: %w (reconnect failed: %v)", err, reconnErr)
		}
		id, err = n.doNotify(notif)
	}
	return id, err
}

func (n *DBusNotifier) doNotify(notif Notification) (uint32, error) {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(
		notifyInterface+".Notify",
		0,
		appName,
		notif.ReplacesID,
		notif.Icon,
		notif.Summary,
		notif.Body,
		notif.Actions,
		map[string]dbus.Variant{
			"urgency":  dbus.MakeVariant(byte(2)), // critical
			"resident": dbus.MakeVariant(true),    // keep open after an action
		},
		int32(0), // never expire
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify call: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("store notify result: %w", err)
	}
	return id, nil
}

// CloseNotification closes a notification by ID. If the connection is
// dead it reconnects and retries once.
func (n *DBusNotifier) CloseNotification(id uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.doClose(id)
	if err != nil && errors.Is(err, dbus.ErrClosed) {
		if reconnErr := n.reconnect(); reconnErr != nil {
			return fmt.Errorf("close notification: %w (reconnect failed: %v)", err, reconnErr)
		}
		err = n.doClose(id)
	}
	return err
}

func (n *DBusNotifier) doClose(id uint32) error {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyInterface+".CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}
