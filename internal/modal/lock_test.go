package modal

import (
	"path/filepath"
	"testing"
)

func TestLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "modal.lock")
	a := NewLock(path)
	b := NewLock(path)

	ok, err := a.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = b.TryAcquire()
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second holder acquired a held lock")
	}

	if err := a.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = b.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
	if !b.Held() || a.Held() {
		t.Errorf("Held: a=%v b=%v", a.Held(), b.Held())
	}
	if err := b.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestLock_Reentrant(t *testing.T) {
	l := NewLock(filepath.Join(t.TempDir(), "modal.lock"))
	for i := 0; i < 2; i++ {
		ok, err := l.TryAcquire()
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second release: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got, want := DefaultPath(), "/run/user/1000/fw-prompt/modal.lock"; got != want {
		t.Errorf("DefaultPath = %q, want %q", got, want)
	}
}
