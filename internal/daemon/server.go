package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/nikicat/fw-prompt/internal/command"
)

// Bus selectors accepted by Connect. Anything else is a D-Bus address.
const (
	BusSystem  = "system"
	BusSession = "session"
)

// Connect opens a private connection to the selected bus.
func Connect(bus string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case "", BusSystem:
		conn, err = dbus.ConnectSystemBus()
	case BusSession:
		conn, err = dbus.ConnectSessionBus()
	default:
		conn, err = dbus.Connect(bus)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to D-Bus (%s): %w", busLabel(bus), err)
	}
	return conn, nil
}

func busLabel(bus string) string {
	if bus == "" {
		return BusSystem
	}
	return bus
}

// Options configures a Server.
type Options struct {
	// Bus is "system" (the default), "session" or a D-Bus address.
	Bus string
	// ReplaceName takes the bus name over from a running owner that allows
	// replacement instead of failing.
	ReplaceName bool

	Queue  Queue
	Router *command.Router
}

// Server owns the D-Bus connection, the exported objects and the bus
// name.
type Server struct {
	opts Options

	mu      sync.Mutex
	conn    *dbus.Conn
	tracker *senderTracker
	closed  bool
}

// NewServer creates a server. Nothing is exported until Start.
func NewServer(opts Options) *Server {
	return &Server{opts: opts}
}

// Start connects, exports both interfaces and claims BusName.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("daemon server is closed")
	}
	if s.conn != nil {
		return errors.New("daemon server already started")
	}

	conn, err := Connect(s.opts.Bus)
	if err != nil {
		return err
	}

	tracker, err := newSenderTracker(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("watch bus clients: %w", err)
	}

	if err := export(conn, s.opts, tracker); err != nil {
		tracker.close()
		conn.Close()
		return err
	}

	if err := claimName(conn, s.opts.ReplaceName); err != nil {
		tracker.close()
		conn.Close()
		return err
	}

	s.conn = conn
	s.tracker = tracker
	slog.Info("prompt service ready", "bus", busLabel(s.opts.Bus), "bus_name", BusName)
	return nil
}

func export(conn *dbus.Conn, opts Options, tracker *senderTracker) error {
	prompter := NewPrompter(opts.Queue, tracker.contextFor)
	keys := NewKeybindings(opts.Router)

	if err := conn.Export(prompter, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export prompter: %w", err)
	}
	if err := conn.Export(keys, ObjectPath, KeybindingsInterface); err != nil {
		return fmt.Errorf("export keybindings: %w", err)
	}

	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(prompter),
			},
			{
				Name:    KeybindingsInterface,
				Methods: introspect.Methods(keys),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, introspectableInterface); err != nil {
		return fmt.Errorf("export introspectable: %w", err)
	}
	return nil
}

func claimName(conn *dbus.Conn, replace bool) error {
	flags := dbus.NameFlagDoNotQueue
	if replace {
		flags |= dbus.NameFlagReplaceExisting
	}
	reply, err := conn.RequestName(BusName, flags)
	if err != nil {
		return fmt.Errorf("request bus name %q: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("not primary owner of %q (reply=%d); policy rejected or name already taken", BusName, reply)
	}
	return nil
}

// Close releases the bus name, cancels every waiting RequestPrompt call and
// closes the connection. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}

	s.tracker.close()

	var errs []error
	if _, err := s.conn.ReleaseName(BusName); err != nil {
		errs = append(errs, fmt.Errorf("release bus name: %w", err))
	}
	for _, iface := range []string{Interface, KeybindingsInterface, introspectableInterface} {
		if err := s.conn.Export(nil, ObjectPath, iface); err != nil {
			errs = append(errs, fmt.Errorf("unexport %s: %w", iface, err))
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus connection: %w", err))
	}
	s.conn = nil

	slog.Info("prompt service stopped")
	return errors.Join(errs...)
}
