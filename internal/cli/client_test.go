package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing or invalid auth header")
		}
		json.NewEncoder(w).Encode(Status{
			Running: true,
			Version: "v1.0.0",
			Active:  &Prompt{ID: "req-1", Application: "curl"},
			Queued:  []Prompt{{ID: "req-2"}},
		})
	}))
	defer server.Close()

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "test-token")
	st, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Active == nil || st.Active.ID != "req-1" {
		t.Errorf("unexpected active: %+v", st.Active)
	}
	if len(st.Queued) != 1 {
		t.Errorf("expected 1 queued, got %d", len(st.Queued))
	}
}

func TestClient_History(t *testing.T) {
	entries := []HistoryEntry{
		{
			Prompt:     Prompt{ID: "req-456", Application: "wget"},
			Resolution: "decided",
			Scope:      "session",
			Rule:       "ALLOW|example.com:443",
			ResolvedAt: time.Now(),
		},
	}

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/history" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(HistoryResponse{Entries: entries})
	}))
	defer server.Close()

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "test-token")

	result, err := client.History(0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(result) != 1 || result[0].Resolution != "decided" {
		t.Fatalf("unexpected entries: %+v", result)
	}
	if gotQuery != "" {
		t.Errorf("unexpected query %q", gotQuery)
	}

	if _, err := client.History(5); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if gotQuery != "limit=5" {
		t.Errorf("query = %q, want limit=5", gotQuery)
	}
}

func TestClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid token"})
	}))
	defer server.Close()

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "wrong")
	_, err := client.Status()
	if err == nil || err.Error() != "invalid token" {
		t.Errorf("expected 'invalid token', got %v", err)
	}
}

func TestClient_PlainErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(strings.TrimPrefix(server.URL, "http://"), "t")
	_, err := client.History(0)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	if _, err := NewClient(addr, "t").Status(); err == nil {
		t.Error("expected an error for a closed server")
	}
}
