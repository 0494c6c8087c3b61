package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// fakeFeed is a Feed with fixed contents.
type fakeFeed struct {
	status  prompt.Status
	history []prompt.HistoryEntry

	mu        sync.Mutex
	observers map[prompt.Observer]struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		status:    prompt.Status{Queued: []*prompt.Request{}},
		observers: make(map[prompt.Observer]struct{}),
	}
}

func (f *fakeFeed) Status() prompt.Status          { return f.status }
func (f *fakeFeed) History() []prompt.HistoryEntry { return f.history }

func (f *fakeFeed) Subscribe(o prompt.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers[o] = struct{}{}
}

func (f *fakeFeed) Unsubscribe(o prompt.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.observers, o)
}

func (f *fakeFeed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeFeed) emit(e prompt.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for o := range f.observers {
		o.OnEvent(e)
	}
}

func testRequest(id, app string) *prompt.Request {
	return &prompt.Request{
		ID:          id,
		Application: app,
		Path:        "/usr/bin/" + app,
		Address:     "example.com",
		Port:        443,
		Proto:       "tcp",
		PID:         100,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestHandleStatus(t *testing.T) {
	feed := newFakeFeed()
	feed.status = prompt.Status{
		Active: testRequest("a", "curl"),
		Queued: []*prompt.Request{testRequest("b", "wget"), testRequest("c", "ssh")},
	}
	handlers := NewHandlers(feed)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	handlers.HandleStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Running {
		t.Error("expected running=true")
	}
	if resp.Version != BuildVersion {
		t.Errorf("version = %q, want %q", resp.Version, BuildVersion)
	}
	if resp.Active == nil || resp.Active.ID != "a" {
		t.Fatalf("unexpected active prompt: %+v", resp.Active)
	}
	var ids []string
	for _, q := range resp.Queued {
		ids = append(ids, q.ID)
	}
	if diff := cmp.Diff([]string{"b", "c"}, ids); diff != "" {
		t.Errorf("queued mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleStatus_Idle(t *testing.T) {
	handlers := NewHandlers(newFakeFeed())

	rr := httptest.NewRecorder()
	handlers.HandleStatus(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	var raw map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, ok := raw["active"]; ok {
		t.Error("idle status should omit active")
	}
	if q, ok := raw["queued"].([]any); !ok || len(q) != 0 {
		t.Errorf("queued should be an empty array, got %v", raw["queued"])
	}
}

func TestHandleStatus_WrongMethod(t *testing.T) {
	handlers := NewHandlers(newFakeFeed())

	rr := httptest.NewRecorder()
	handlers.HandleStatus(rr, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rr.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	resolved := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)
	feed := newFakeFeed()
	feed.history = []prompt.HistoryEntry{
		{
			Request:    testRequest("b", "wget"),
			Resolution: prompt.ResolutionDecided,
			Result:     prompt.Result{Scope: prompt.ScopePermanent, Rule: "ALLOW|example.com:443"},
			ResolvedAt: resolved,
		},
		{
			Request:    testRequest("a", "curl"),
			Resolution: prompt.ResolutionAbandoned,
			Result:     prompt.Abandoned,
			ResolvedAt: resolved,
		},
	}
	handlers := NewHandlers(feed)

	t.Run("all", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handlers.HandleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp HistoryResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		want := []HistoryEntry{
			{
				Prompt:     convertRequest(testRequest("b", "wget")),
				Resolution: "decided",
				Scope:      "permanent",
				Rule:       "ALLOW|example.com:443",
				ResolvedAt: resolved,
			},
			{
				Prompt:     convertRequest(testRequest("a", "curl")),
				Resolution: "abandoned",
				Scope:      "none",
				ResolvedAt: resolved,
			},
		}
		if diff := cmp.Diff(want, resp.Entries); diff != "" {
			t.Errorf("history mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handlers.HandleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=1", nil))

		var resp HistoryResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Entries) != 1 || resp.Entries[0].Prompt.ID != "b" {
			t.Errorf("unexpected entries: %+v", resp.Entries)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handlers.HandleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=-3", nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestHandleHistory_Empty(t *testing.T) {
	handlers := NewHandlers(newFakeFeed())

	rr := httptest.NewRecorder()
	handlers.HandleHistory(rr, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	var raw map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if e, ok := raw["entries"].([]any); !ok || len(e) != 0 {
		t.Errorf("entries should be an empty array, got %v", raw["entries"])
	}
}
