// Package modal provides the exclusive-ownership primitive a prompt
// dialog must hold while it is visible.
package modal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Grabber is a non-blocking exclusive grab.
type Grabber interface {
	// TryAcquire takes the grab if it is free. It never blocks.
	TryAcquire() (bool, error)
	Release() error
}

// Lock is an advisory flock on a per-user lock file. Any process that
// shows a modal prompt takes it first, so two prompts never compete for
// the same screen or terminal.
type Lock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewLock creates a lock on path. The file is created on first acquire.
func NewLock(path string) *Lock {
	return &Lock{path: path}
}

// DefaultPath returns $XDG_RUNTIME_DIR/fw-prompt/modal.lock, falling back
// to the temp directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("fw-prompt-%d", os.Getuid()))
	} else {
		dir = filepath.Join(dir, "fw-prompt")
	}
	return filepath.Join(dir, "modal.lock")
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire takes the lock without waiting. It reports false when
// another holder has it. Acquiring an already held lock succeeds.
func (l *Lock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock %s: %w", l.path, err)
	}
	l.file = f
	return true, nil
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return f.Close()
}

// Held reports whether this Lock currently holds the grab.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}
