// Package command routes named keybinding commands to the active prompt
// session.
package command

import (
	"errors"
	"sort"
)

// ErrUnknownCommand is returned for a name outside the fixed command set.
var ErrUnknownCommand = errors.New("unknown command")

// Name identifies a keybinding command.
type Name string

const (
	ScopePrevious  Name = "prompt-scope-previous"
	ScopeNext      Name = "prompt-scope-next"
	RuleNext       Name = "prompt-rule-next"
	RulePrevious   Name = "prompt-rule-previous"
	RuleAllow      Name = "prompt-rule-allow"
	RuleDeny       Name = "prompt-rule-deny"
	ToggleDetails  Name = "prompt-toggle-details"
	ToggleTLSGuard Name = "prompt-toggle-tlsguard"
)

// Handlers is implemented by sessions that react to keybinding commands.
type Handlers interface {
	OnPromptScopePrevious()
	OnPromptScopeNext()
	OnPromptRuleNext()
	OnPromptRulePrevious()
	OnPromptRuleAllow()
	OnPromptRuleDeny()
	OnPromptToggleDetails()
	OnPromptToggleTlsguard()
}

var table = map[Name]func(Handlers){
	ScopePrevious:  Handlers.OnPromptScopePrevious,
	ScopeNext:      Handlers.OnPromptScopeNext,
	RuleNext:       Handlers.OnPromptRuleNext,
	RulePrevious:   Handlers.OnPromptRulePrevious,
	RuleAllow:      Handlers.OnPromptRuleAllow,
	RuleDeny:       Handlers.OnPromptRuleDeny,
	ToggleDetails:  Handlers.OnPromptToggleDetails,
	ToggleTLSGuard: Handlers.OnPromptToggleTlsguard,
}

// Names returns every known command name, sorted.
func Names() []string {
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

// Lookup returns the handler method for name.
func Lookup(name string) (func(Handlers), error) {
	fn, ok := table[Name(name)]
	if !ok {
		return nil, ErrUnknownCommand
	}
	return fn, nil
}

// Dispatch invokes the handler for name on h.
func Dispatch(h Handlers, name string) error {
	fn, err := Lookup(name)
	if err != nil {
		return err
	}
	fn(h)
	return nil
}
