package daemon

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
)

// senderTracker hands out per-call contexts that are cancelled when the
// calling connection leaves the bus. One sender may have several calls in
// flight.
type senderTracker struct {
	conn *dbus.Conn

	mu      sync.Mutex
	next    uint64
	senders map[string]map[uint64]context.CancelFunc // unique name -> calls
	closed  bool

	signals   chan *dbus.Signal
	done      chan struct{}
	closeOnce sync.Once
}

func newTracker() *senderTracker {
	return &senderTracker{
		senders: make(map[string]map[uint64]context.CancelFunc),
		signals: make(chan *dbus.Signal, 16),
		done:    make(chan struct{}),
	}
}

// newSenderTracker subscribes to NameOwnerChanged on conn.
func newSenderTracker(conn *dbus.Conn) (*senderTracker, error) {
	t := newTracker()
	t.conn = conn

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
	); err != nil {
		return nil, err
	}
	conn.Signal(t.signals)

	go t.processSignals()
	return t, nil
}

func (t *senderTracker) processSignals() {
	for {
		select {
		case <-t.done:
			return
		case sig, ok := <-t.signals:
			if !ok {
				return
			}
			if sender, gone := departedSender(sig); gone {
				t.disconnected(sender)
			}
		}
	}
}

// departedSender reports the unique name released by a NameOwnerChanged
// signal, if the signal announces a connection leaving the bus.
func departedSender(sig *dbus.Signal) (string, bool) {
	if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
		return "", false
	}
	name, ok1 := sig.Body[0].(string)
	oldOwner, ok2 := sig.Body[1].(string)
	newOwner, ok3 := sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return "", false
	}
	if name == "" || name[0] != ':' || oldOwner == "" || newOwner != "" {
		return "", false
	}
	return oldOwner, true
}

func (t *senderTracker) disconnected(sender string) {
	t.mu.Lock()
	calls := t.senders[sender]
	delete(t.senders, sender)
	t.mu.Unlock()

	for _, cancel := range calls {
		cancel()
	}
}

// contextFor returns a context cancelled when sender disconnects, the
// tracker closes, or the returned cancel func is called.
func (t *senderTracker) contextFor(sender string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		cancel()
		return ctx, cancel
	}

	id := t.next
	t.next++
	calls := t.senders[sender]
	if calls == nil {
		calls = make(map[uint64]context.CancelFunc)
		t.senders[sender] = calls
	}
	calls[id] = cancel

	return ctx, func() {
		cancel()
		t.mu.Lock()
		defer t.mu.Unlock()
		if calls := t.senders[sender]; calls != nil {
			delete(calls, id)
			if len(calls) == 0 {
				delete(t.senders, sender)
			}
		}
	}
}

// close stops the tracker and cancels every outstanding context.
func (t *senderTracker) close() {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.conn != nil {
			t.conn.RemoveSignal(t.signals)
		}
	})

	t.mu.Lock()
	all := t.senders
	t.senders = make(map[string]map[uint64]context.CancelFunc)
	t.closed = true
	t.mu.Unlock()

	for _, calls := range all {
		for _, cancel := range calls {
			cancel()
		}
	}
}

// pending returns the number of tracked calls.
func (t *senderTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, calls := range t.senders {
		n += len(calls)
	}
	return n
}
