package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Formatter outputs data in various formats.
type Formatter struct {
	w      io.Writer
	asJSON bool
}

// NewFormatter creates a new formatter.
func NewFormatter(w io.Writer, asJSON bool) *Formatter {
	return &Formatter{w: w, asJSON: asJSON}
}

const promptRow = "%-8s  %-16s  %-5s  %-30s  %7s  %s\n"

// FormatStatus outputs the active prompt and the queue.
func (f *Formatter) FormatStatus(st *Status) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(st)
	}

	fmt.Fprintf(f.w, "Server:  running (%s)\n", st.Version)
	if st.Active == nil {
		fmt.Fprintln(f.w, "Active:  none")
	} else {
		fmt.Fprintf(f.w, "Active:  %s %s -> %s (%s ago)\n",
			truncate(st.Active.ID, 8), st.Active.Application, destination(*st.Active), formatAge(st.Active.CreatedAt))
	}
	if len(st.Queued) == 0 {
		fmt.Fprintln(f.w, "Queued:  none")
		return nil
	}

	fmt.Fprintf(f.w, "Queued:  %d\n\n", len(st.Queued))
	fmt.Fprintf(f.w, promptRow, "ID", "APPLICATION", "PROTO", "DESTINATION", "PID", "WAITING")
	fmt.Fprintf(f.w, promptRow, "--------", "----------------", "-----", "------------------------------", "-------", "-------")
	for _, p := range st.Queued {
		fmt.Fprintf(f.w, promptRow,
			truncate(p.ID, 8),
			truncate(p.Application, 16),
			p.Proto,
			truncate(destination(p), 30),
			formatPID(p.PID),
			formatAge(p.CreatedAt))
	}
	return nil
}

const historyRow = "%-8s  %-16s  %-30s  %-10s  %-9s  %-24s  %s\n"

// FormatHistory outputs history entries as a table.
func (f *Formatter) FormatHistory(entries []HistoryEntry) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(f.w, "No history entries")
		return nil
	}

	fmt.Fprintf(f.w, historyRow, "ID", "APPLICATION", "DESTINATION", "RESULT", "SCOPE", "RULE", "RESOLVED")
	fmt.Fprintf(f.w, historyRow, "--------", "----------------", "------------------------------", "----------", "---------", "------------------------", "--------")
	for _, e := range entries {
		rule := e.Rule
		if rule == "" {
			rule = "-"
		}
		fmt.Fprintf(f.w, historyRow,
			truncate(e.Prompt.ID, 8),
			truncate(e.Prompt.Application, 16),
			truncate(destination(e.Prompt), 30),
			truncate(e.Resolution, 10),
			e.Scope,
			truncate(rule, 24),
			formatAgo(e.ResolvedAt))
	}
	return nil
}

// FormatCommand outputs the result of a keybinding command.
func (f *Formatter) FormatCommand(name string, handled bool) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(map[string]any{
			"command": name,
			"handled": handled,
		})
	}
	if handled {
		fmt.Fprintf(f.w, "%s: delivered\n", name)
	} else {
		fmt.Fprintf(f.w, "%s: no prompt visible\n", name)
	}
	return nil
}

// FormatCommands outputs the accepted command names.
func (f *Formatter) FormatCommands(names []string) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(names)
	}
	for _, n := range names {
		fmt.Fprintln(f.w, n)
	}
	return nil
}

// FormatAction outputs an action result.
func (f *Formatter) FormatAction(action string) error {
	if f.asJSON {
		return json.NewEncoder(f.w).Encode(map[string]string{"status": action})
	}
	fmt.Fprintln(f.w, action)
	return nil
}

func destination(p Prompt) string {
	host := p.Address
	if host == "" {
		host = p.IP
	}
	return host + ":" + strconv.Itoa(int(p.Port))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}

func formatPID(pid int32) string {
	if pid < 0 {
		return "-"
	}
	return strconv.Itoa(int(pid))
}

func formatAge(t time.Time) string {
	return max(time.Since(t).Round(time.Second), 0).String()
}

func formatAgo(t time.Time) string {
	ago := time.Since(t).Round(time.Second)
	if ago < 0 {
		return "just now"
	}
	return ago.String() + " ago"
}
