// Package procinfo reads process ancestry from /proc for the prompt
// details view.
package procinfo

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a process has no readable status entry.
var ErrNotFound = errors.New("process not found")

// maxDepth bounds the walk in case of a corrupt or cyclic tree.
const maxDepth = 64

// Process is one entry of a process chain.
type Process struct {
	PID  int32  `json:"pid"`
	PPID int32  `json:"ppid"`
	Name string `json:"name"`
	UID  int32  `json:"uid"`
}

// Reader reads process information below Root.
type Reader struct {
	Root string
}

// Default reads the host's /proc.
var Default = Reader{Root: "/proc"}

// Lookup returns the status of a single process.
func (r Reader) Lookup(pid int32) (Process, error) {
	if pid <= 0 {
		return Process{}, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	f, err := os.Open(filepath.Join(r.Root, strconv.Itoa(int(pid)), "status"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Process{}, fmt.Errorf("pid %d: %w", pid, ErrNotFound)
		}
		return Process{}, fmt.Errorf("read status of pid %d: %w", pid, err)
	}
	defer f.Close()

	p := Process{PID: pid, UID: -1}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			p.Name = value
		case "PPid":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return Process{}, fmt.Errorf("parse ppid of pid %d: %w", pid, err)
			}
			p.PPID = int32(n)
		case "Uid":
			// Real, effective, saved, filesystem.
			fields := strings.Fields(value)
			if len(fields) > 0 {
				if n, err := strconv.ParseInt(fields[0], 10, 32); err == nil {
					p.UID = int32(n)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Process{}, fmt.Errorf("scan status of pid %d: %w", pid, err)
	}
	return p, nil
}

// Chain walks from pid up to, but not including, init. The requested
// process comes first. A process that vanishes mid-walk ends the chain.
func (r Reader) Chain(pid int32) ([]Process, error) {
	first, err := r.Lookup(pid)
	if err != nil {
		return nil, err
	}
	chain := []Process{first}
	seen := map[int32]bool{pid: true}
	for p := first.PPID; p > 1 && len(chain) < maxDepth && !seen[p]; {
		proc, err := r.Lookup(p)
		if err != nil {
			break
		}
		seen[p] = true
		chain = append(chain, proc)
		p = proc.PPID
	}
	return chain, nil
}

// Format renders a chain as "name[pid] < parent[pid] < ...".
func Format(chain []Process) string {
	parts := make([]string, len(chain))
	for i, p := range chain {
		parts[i] = fmt.Sprintf("%s[%d]", p.Name, p.PID)
	}
	return strings.Join(parts, " < ")
}
