package dialog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// DefaultTTY is the terminal the terminal backend draws on.
const DefaultTTY = "/dev/tty"

// KeyMap defines the terminal dialog key bindings.
type KeyMap struct {
	ScopePrevious  key.Binding
	ScopeNext      key.Binding
	RulePrevious   key.Binding
	RuleNext       key.Binding
	Allow          key.Binding
	Deny           key.Binding
	ToggleDetails  key.Binding
	ToggleTLSGuard key.Binding
	Dismiss        key.Binding
}

// DefaultKeyMap returns the default terminal dialog bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		ScopePrevious: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "narrower scope"),
		),
		ScopeNext: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "broader scope"),
		),
		RulePrevious: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous target"),
		),
		RuleNext: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next target"),
		),
		Allow: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "allow"),
		),
		Deny: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "deny"),
		),
		ToggleDetails: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "details"),
		),
		ToggleTLSGuard: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "tls only"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc", "ignore"),
		),
	}
}

// ShortHelp renders a compact help line.
func (k KeyMap) ShortHelp(tlsGuard bool) string {
	bindings := []key.Binding{k.Allow, k.Deny, k.ScopeNext, k.RuleNext, k.ToggleDetails}
	if tlsGuard {
		bindings = append(bindings, k.ToggleTLSGuard)
	}
	bindings = append(bindings, k.Dismiss)

	snippets := make([]string, 0, len(bindings))
	for _, b := range bindings {
		help := b.Help()
		snippets = append(snippets, fmt.Sprintf("%s %s", help.Key, help.Desc))
	}
	return strings.Join(snippets, " · ")
}

type snapshotMsg Snapshot

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	labelStyle    = lipgloss.NewStyle().Faint(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	allowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	denyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// tuiModel renders a snapshot and turns keys into session commands. State
// lives in the session; the model only mirrors the latest snapshot.
type tuiModel struct {
	ctl   controls
	keys  KeyMap
	snap  Snapshot
	width int
}

func newTUIModel(ctl controls, keys KeyMap, s Snapshot) tuiModel {
	return tuiModel{ctl: ctl, keys: keys, snap: s}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

// run defers fn to a command goroutine, so session callbacks never run on
// the program's event loop.
func run(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = Snapshot(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Allow):
			return m, run(m.ctl.OnPromptRuleAllow)
		case key.Matches(msg, m.keys.Deny):
			return m, run(m.ctl.OnPromptRuleDeny)
		case key.Matches(msg, m.keys.ScopePrevious):
			return m, run(m.ctl.OnPromptScopePrevious)
		case key.Matches(msg, m.keys.ScopeNext):
			return m, run(m.ctl.OnPromptScopeNext)
		case key.Matches(msg, m.keys.RulePrevious):
			return m, run(m.ctl.OnPromptRulePrevious)
		case key.Matches(msg, m.keys.RuleNext):
			return m, run(m.ctl.OnPromptRuleNext)
		case key.Matches(msg, m.keys.ToggleDetails):
			return m, run(m.ctl.OnPromptToggleDetails)
		case key.Matches(msg, m.keys.ToggleTLSGuard):
			if m.snap.TLSGuard {
				return m, run(m.ctl.OnPromptToggleTlsguard)
			}
		case key.Matches(msg, m.keys.Dismiss):
			return m, run(m.ctl.Dismiss)
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	s := m.snap
	var b strings.Builder

	b.WriteString(titleStyle.Render(s.Title))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Scope   "))
	b.WriteString(renderChoices(scopeNames(s.Scopes), s.Scope.String()))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Target  "))
	b.WriteString(renderChoices(s.Targets, s.Target))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Rule    "))
	if s.Verb == VerbDeny {
		b.WriteString(denyStyle.Render(s.Rule()))
	} else {
		b.WriteString(allowStyle.Render(s.Rule()))
	}
	if s.TLSGuard {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("TLS     "))
		b.WriteString(onOff(s.TLSOnly))
	}

	if s.ShowDetails {
		b.WriteString("\n")
		for _, d := range s.Details {
			b.WriteString("\n")
			b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", d.Label)))
			b.WriteString(d.Value)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(m.keys.ShortHelp(s.TLSGuard)))

	box := boxStyle
	if m.width > 4 {
		box = box.MaxWidth(m.width)
	}
	return box.Render(b.String())
}

func scopeNames(scopes []prompt.Scope) []string {
	names := make([]string, len(scopes))
	for i, s := range scopes {
		names[i] = s.String()
	}
	return names
}

func renderChoices(choices []string, selected string) string {
	parts := make([]string, len(choices))
	for i, c := range choices {
		if c == selected {
			parts[i] = selectedStyle.Render(c)
		} else {
			parts[i] = c
		}
	}
	return strings.Join(parts, "  ")
}

// tuiView runs a bubbletea program on a terminal while the dialog is shown.
type tuiView struct {
	ctl     controls
	keys    KeyMap
	ttyPath string
	reqID   string

	tty    *os.File
	prog   *tea.Program
	exited chan struct{}
}

func newTUIView(ctl controls, keys KeyMap, ttyPath, reqID string) *tuiView {
	if ttyPath == "" {
		ttyPath = DefaultTTY
	}
	return &tuiView{ctl: ctl, keys: keys, ttyPath: ttyPath, reqID: reqID}
}

func (v *tuiView) Show(s Snapshot) error {
	tty, err := os.OpenFile(v.ttyPath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	v.tty = tty
	v.exited = make(chan struct{})
	v.prog = tea.NewProgram(
		newTUIModel(v.ctl, v.keys, s),
		tea.WithInput(tty),
		tea.WithOutput(tty),
		tea.WithAltScreen(),
	)

	go func(p *tea.Program, exited chan struct{}) {
		_, err := p.Run()
		close(exited)
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("terminal prompt failed", "request_id", v.reqID, "error", err)
		}
		// Covers the program dying on its own; a no-op once decided.
		v.ctl.Dismiss()
	}(v.prog, v.exited)
	return nil
}

func (v *tuiView) Update(s Snapshot) error {
	if v.prog == nil {
		return nil
	}
	v.prog.Send(snapshotMsg(s))
	return nil
}

func (v *tuiView) Hide() error {
	if v.prog == nil {
		return nil
	}
	v.prog.Quit()
	select {
	case <-v.exited:
	case <-time.After(2 * time.Second):
		v.prog.Kill()
		<-v.exited
		return fmt.Errorf("terminal prompt did not exit, killed")
	}
	return nil
}

func (v *tuiView) Dispose() error {
	v.prog = nil
	if v.tty == nil {
		return nil
	}
	err := v.tty.Close()
	v.tty = nil
	return err
}
