package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// Source is the read side of the prompt manager.
type Source interface {
	Status() prompt.Status
	History() []prompt.HistoryEntry
}

// Handlers provides HTTP handlers for the REST API.
type Handlers struct {
	source Source
}

// NewHandlers creates new API handlers.
func NewHandlers(source Source) *Handlers {
	return &Handlers{source: source}
}

// HandleStatus handles GET /api/v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, buildStatus(h.source.Status()))
}

func buildStatus(st prompt.Status) StatusResponse {
	resp := StatusResponse{
		Running: true,
		Version: BuildVersion,
		Queued:  make([]PromptInfo, len(st.Queued)),
	}
	if st.Active != nil {
		active := convertRequest(st.Active)
		resp.Active = &active
	}
	for i, req := range st.Queued {
		resp.Queued[i] = convertRequest(req)
	}
	return resp
}

// HandleHistory handles GET /api/v1/history[?limit=N], newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := h.source.History()
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}

	resp := HistoryResponse{Entries: make([]HistoryEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = convertHistory(e)
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message}) //nolint:errcheck
}
