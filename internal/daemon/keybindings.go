package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nikicat/fw-prompt/internal/command"
)

const invokeTimeout = 5 * time.Second

// Keybindings is the object exported as com.subgraph.FirewallPrompt.Keybindings.
// It lets a compositor or hotkey daemon deliver the prompt commands.
type Keybindings struct {
	router *command.Router
}

// NewKeybindings creates the keybinding interface over router.
func NewKeybindings(router *command.Router) *Keybindings {
	return &Keybindings{router: router}
}

// Invoke routes the named command to the visible prompt. It reports false
// when no prompt is visible.
func (k *Keybindings) Invoke(name string) (bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), invokeTimeout)
	defer cancel()

	handled, err := k.router.Route(ctx, name)
	switch {
	case err == nil:
		return handled, nil
	case errors.Is(err, command.ErrUnknownCommand):
		return false, InvalidArgs(err)
	default:
		return false, Failed(err)
	}
}

// List returns every command name Invoke accepts.
func (k *Keybindings) List() ([]string, *dbus.Error) {
	return command.Names(), nil
}
