package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNewAuth(t *testing.T) {
	tempDir := t.TempDir()

	auth, err := NewAuth(tempDir)
	if err != nil {
		t.Fatalf("NewAuth failed: %v", err)
	}

	tokenPath := filepath.Join(tempDir, tokenFileName)
	info, err := os.Stat(tokenPath)
	if err != nil {
		t.Fatalf("token file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}

	content, err := os.ReadFile(tokenPath)
	if err != nil {
		t.Fatalf("failed to read token file: %v", err)
	}
	// 32 bytes hex encoded
	if len(content) != 64 {
		t.Errorf("expected 64 char token, got %d", len(content))
	}
	if string(content) != auth.Token() {
		t.Error("token in file doesn't match auth.Token()")
	}
}

func TestLoadAuth(t *testing.T) {
	tempDir := t.TempDir()
	auth, err := NewAuth(tempDir)
	if err != nil {
		t.Fatalf("NewAuth failed: %v", err)
	}

	loaded, err := LoadAuth(tempDir)
	if err != nil {
		t.Fatalf("LoadAuth failed: %v", err)
	}
	if loaded.Token() != auth.Token() {
		t.Error("loaded token differs")
	}

	if err := auth.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := auth.Remove(); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	if _, err := LoadAuth(tempDir); err == nil {
		t.Error("LoadAuth succeeded after Remove")
	}
}

func TestLoadAuth_Empty(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, tokenFileName), []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAuth(tempDir); err == nil {
		t.Error("expected an error for an empty token file")
	}
}

func TestAuth_Middleware_ValidToken(t *testing.T) {
	auth, err := NewAuth(t.TempDir())
	if err != nil {
		t.Fatalf("NewAuth failed: %v", err)
	}

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+auth.Token())

	rr := httptest.NewRecorder()
	auth.Middleware(handler).ServeHTTP(rr, req)

	if !called {
		t.Error("handler was not called")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

func TestAuth_Middleware_Rejects(t *testing.T) {
	auth, err := NewAuth(t.TempDir())
	if err != nil {
		t.Fatalf("NewAuth failed: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer wrong-token"},
		{"no scheme", auth.Token()},
		{"wrong scheme", "Basic " + auth.Token()},
		{"empty bearer", "Bearer "},
		{"no space", "Bearer" + auth.Token()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			rr := httptest.NewRecorder()
			auth.Middleware(handler).ServeHTTP(rr, req)

			if called {
				t.Error("handler should not be called")
			}
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rr.Code)
			}
		})
	}
}

func TestAuth_CreatesStateDir(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "nested", "state")

	auth, err := NewAuth(nestedDir)
	if err != nil {
		t.Fatalf("NewAuth failed: %v", err)
	}
	if auth.FilePath() != filepath.Join(nestedDir, tokenFileName) {
		t.Errorf("unexpected path %s", auth.FilePath())
	}

	info, err := os.Stat(nestedDir)
	if err != nil {
		t.Fatalf("nested dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}
}
