// Package daemon exposes the prompt manager on D-Bus as
// com.subgraph.FirewallPrompt, the interface the firewall daemon calls to
// ask the user about a connection.
package daemon

import "github.com/godbus/dbus/v5"

// D-Bus names of the prompt service.
const (
	BusName              = "com.subgraph.FirewallPrompt"
	ObjectPath           = dbus.ObjectPath("/com/subgraph/FirewallPrompt")
	Interface            = "com.subgraph.FirewallPrompt"
	KeybindingsInterface = "com.subgraph.FirewallPrompt.Keybindings"

	introspectableInterface = "org.freedesktop.DBus.Introspectable"
)

// Error names returned to callers.
const (
	ErrInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrFailed      = "org.freedesktop.DBus.Error.Failed"
)

// NewDBusError creates a D-Bus error with the given name and message.
func NewDBusError(name, message string) *dbus.Error {
	return &dbus.Error{
		Name: name,
		Body: []any{message},
	}
}

// InvalidArgs returns an InvalidArgs error carrying err's text.
func InvalidArgs(err error) *dbus.Error {
	return NewDBusError(ErrInvalidArgs, err.Error())
}

// Failed returns a generic failure carrying err's text.
func Failed(err error) *dbus.Error {
	return NewDBusError(ErrFailed, err.Error())
}
