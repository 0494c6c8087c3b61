// Package dialog implements the interactive prompt sessions: the decision
// form shared by every backend, a desktop notification backend and a
// terminal backend.
package dialog

import (
	"fmt"
	"strconv"

	"github.com/nikicat/fw-prompt/internal/procinfo"
	"github.com/nikicat/fw-prompt/internal/prompt"
)

// Rule verbs.
const (
	VerbAllow        = "ALLOW"
	VerbAllowTLSOnly = "ALLOW_TLSONLY"
	VerbDeny         = "DENY"
)

// Detail is one labelled line of the details view.
type Detail struct {
	Label string
	Value string
}

// Snapshot is an immutable rendering of a form for a view.
type Snapshot struct {
	Title   string
	Icon    string
	Scopes  []prompt.Scope
	Scope   prompt.Scope
	Targets []string
	Target  string
	Verb    string

	// TLSGuard reports whether the TLS-only toggle is offered.
	TLSGuard bool
	TLSOnly  bool

	ShowDetails bool
	Details     []Detail
}

// Rule returns the rule text the snapshot would produce.
func (s Snapshot) Rule() string {
	return s.Verb + "|" + s.Target
}

// Form is the decision state of one prompt. It is not safe for concurrent
// use.
type Form struct {
	req   *prompt.Request
	chain []procinfo.Process

	scopes  []prompt.Scope
	scope   int
	targets []string
	target  int

	allow   bool
	tlsOnly bool
	details bool
}

// NewForm builds the form for req. chain is the process ancestry shown in
// the details view and may be nil.
func NewForm(req *prompt.Request, chain []procinfo.Process) *Form {
	f := &Form{
		req:     req,
		chain:   chain,
		scopes:  scopesFor(req),
		targets: targetsFor(req),
		allow:   req.Action == prompt.ActionAllow,
		tlsOnly: req.TLSGuard,
		details: req.Expanded,
	}
	for i, s := range f.scopes {
		if s == prompt.ScopeSession {
			f.scope = i
		}
	}
	return f
}

func scopesFor(req *prompt.Request) []prompt.Scope {
	scopes := []prompt.Scope{prompt.ScopeOnce, prompt.ScopeSession}
	if req.ProcessKnown() {
		scopes = append(scopes, prompt.ScopeProcess)
	}
	return append(scopes, prompt.ScopePermanent, prompt.ScopeSystem)
}

func targetsFor(req *prompt.Request) []string {
	host := req.Address
	if host == "" {
		host = req.IP
	}
	port := strconv.Itoa(int(req.Port))

	targets := []string{host + ":" + port, host + ":*"}
	if req.IP != "" && req.IP != host {
		targets = append(targets, req.IP+":"+port)
	}
	if req.Expert {
		targets = append(targets, "*:"+port)
	}
	return targets
}

// ScopeNext selects the next broader scope, wrapping around.
func (f *Form) ScopeNext() {
	f.scope = (f.scope + 1) % len(f.scopes)
}

// ScopePrevious selects the next narrower scope, wrapping around.
func (f *Form) ScopePrevious() {
	f.scope = (f.scope + len(f.scopes) - 1) % len(f.scopes)
}

func (f *Form) RuleNext() {
	f.target = (f.target + 1) % len(f.targets)
}

func (f *Form) RulePrevious() {
	f.target = (f.target + len(f.targets) - 1) % len(f.targets)
}

func (f *Form) ToggleDetails() {
	f.details = !f.details
}

// ToggleTLSGuard flips the TLS-only restriction. It does nothing when the
// request did not ask for it.
func (f *Form) ToggleTLSGuard() {
	if f.req.TLSGuard {
		f.tlsOnly = !f.tlsOnly
	}
}

// SetAllow sets the verb of the rule.
func (f *Form) SetAllow(allow bool) {
	f.allow = allow
}

func (f *Form) verb() string {
	switch {
	case !f.allow:
		return VerbDeny
	case f.req.TLSGuard && f.tlsOnly:
		return VerbAllowTLSOnly
	default:
		return VerbAllow
	}
}

// Result returns the decision as it currently stands.
func (f *Form) Result() prompt.Result {
	return prompt.Result{
		Scope: f.scopes[f.scope],
		Rule:  f.verb() + "|" + f.targets[f.target],
	}
}

// Snapshot renders the current state.
func (f *Form) Snapshot() Snapshot {
	s := Snapshot{
		Title:       title(f.req),
		Icon:        f.req.Icon,
		Scopes:      append([]prompt.Scope{}, f.scopes...),
		Scope:       f.scopes[f.scope],
		Targets:     append([]string{}, f.targets...),
		Target:      f.targets[f.target],
		Verb:        f.verb(),
		TLSGuard:    f.req.TLSGuard,
		TLSOnly:     f.tlsOnly,
		ShowDetails: f.details,
	}
	if s.Icon == "" {
		s.Icon = "security-high"
	}
	if f.details {
		s.Details = f.detailLines()
	}
	return s
}

func title(req *prompt.Request) string {
	app := req.Application
	if app == "" {
		app = req.Path
	}
	if app == "" {
		app = "Unknown application"
	}
	host := req.Address
	if host == "" {
		host = req.IP
	}
	t := fmt.Sprintf("%s wants to connect to %s on %s port %d", app, host, req.Proto, req.Port)
	if req.Sandboxed() {
		t += fmt.Sprintf(" (sandbox %s)", req.Sandbox)
	}
	return t
}

func (f *Form) detailLines() []Detail {
	req := f.req
	lines := []Detail{{"Path", req.Path}}
	if req.Origin != "" {
		lines = append(lines, Detail{"Origin", req.Origin})
	}
	if req.IP != "" {
		lines = append(lines, Detail{"IP", req.IP})
	}
	if req.ProcessKnown() {
		lines = append(lines, Detail{"Process ID", strconv.Itoa(int(req.PID))})
	}
	lines = append(lines,
		Detail{"User", idName(req.User, req.UID)},
		Detail{"Group", idName(req.Group, req.GID)},
	)
	if req.Sandboxed() {
		lines = append(lines, Detail{"Sandbox", req.Sandbox})
	}
	if req.OptString != "" {
		lines = append(lines, Detail{"Info", req.OptString})
	}
	if len(f.chain) > 0 {
		lines = append(lines, Detail{"Process chain", procinfo.Format(f.chain)})
	}
	return lines
}

func idName(name string, id int32) string {
	if id < 0 {
		return name
	}
	if name == "" {
		return strconv.Itoa(int(id))
	}
	return fmt.Sprintf("%s (%d)", name, id)
}
