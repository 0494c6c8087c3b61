package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/fw-prompt/internal/daemon"
	"github.com/nikicat/fw-prompt/internal/prompt"
)

const busCallTimeout = 10 * time.Second

// BusClient drives a running server over D-Bus.
type BusClient struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// DialBus connects to the bus the server is registered on ("system",
// "session" or an address).
func DialBus(bus string) (*BusClient, error) {
	conn, err := daemon.Connect(bus)
	if err != nil {
		return nil, err
	}
	return NewBusClient(conn), nil
}

// NewBusClient wraps an existing connection. Close closes conn.
func NewBusClient(conn *dbus.Conn) *BusClient {
	return &BusClient{
		conn: conn,
		obj:  conn.Object(daemon.BusName, daemon.ObjectPath),
	}
}

// Close closes the bus connection.
func (c *BusClient) Close() error {
	return c.conn.Close()
}

func (c *BusClient) call(method string, args ...any) *dbus.Call {
	ctx, cancel := context.WithTimeout(context.Background(), busCallTimeout)
	defer cancel()
	return c.obj.CallWithContext(ctx, method, 0, args...)
}

// RequestPrompt asks the way the firewall daemon does and waits for the
// answer. Only ctx bounds the wait, since a person is deciding.
func (c *BusClient) RequestPrompt(ctx context.Context, req *prompt.Request) (prompt.Result, error) {
	var (
		scope int32
		rule  string
	)
	call := c.obj.CallWithContext(ctx, daemon.Interface+".RequestPrompt", 0, daemon.RequestArgs(req)...)
	if err := call.Store(&scope, &rule); err != nil {
		return prompt.Result{}, fmt.Errorf("RequestPrompt: %w", err)
	}
	return prompt.Result{Scope: prompt.Scope(scope), Rule: rule}, nil
}

// TestPrompt raises the sample prompt.
func (c *BusClient) TestPrompt() error {
	if err := c.call(daemon.Interface + ".TestPrompt").Err; err != nil {
		return fmt.Errorf("TestPrompt: %w", err)
	}
	return nil
}

// ClosePrompt closes the visible prompt and abandons the queue.
func (c *BusClient) ClosePrompt() error {
	if err := c.call(daemon.Interface + ".ClosePrompt").Err; err != nil {
		return fmt.Errorf("ClosePrompt: %w", err)
	}
	return nil
}

// Invoke sends a keybinding command and reports whether a prompt took it.
func (c *BusClient) Invoke(name string) (bool, error) {
	var handled bool
	if err := c.call(daemon.KeybindingsInterface+".Invoke", name).Store(&handled); err != nil {
		return false, fmt.Errorf("Invoke %s: %w", name, err)
	}
	return handled, nil
}

// Commands lists the keybinding commands the server accepts.
func (c *BusClient) Commands() ([]string, error) {
	var names []string
	if err := c.call(daemon.KeybindingsInterface + ".List").Store(&names); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return names, nil
}
