package api

import (
	"time"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

// PromptInfo describes one prompt request in API responses.
type PromptInfo struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender,omitempty"`
	Application string    `json:"application"`
	Path        string    `json:"path"`
	Address     string    `json:"address"`
	IP          string    `json:"ip,omitempty"`
	Port        int32     `json:"port"`
	Proto       string    `json:"proto"`
	PID         int32     `json:"pid"`
	User        string    `json:"user,omitempty"`
	Sandbox     string    `json:"sandbox,omitempty"`
	TLSGuard    bool      `json:"tlsguard,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Running bool         `json:"running"`
	Version string       `json:"version"`
	Active  *PromptInfo  `json:"active,omitempty"`
	Queued  []PromptInfo `json:"queued"`
}

// HistoryEntry is one answered prompt.
type HistoryEntry struct {
	Prompt     PromptInfo `json:"prompt"`
	Resolution string     `json:"resolution"`
	Scope      string     `json:"scope"`
	Rule       string     `json:"rule,omitempty"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// HistoryResponse is returned by GET /api/v1/history.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

func convertRequest(req *prompt.Request) PromptInfo {
	return PromptInfo{
		ID:          req.ID,
		Sender:      req.Sender,
		Application: req.Application,
		Path:        req.Path,
		Address:     req.Address,
		IP:          req.IP,
		Port:        req.Port,
		Proto:       req.Proto,
		PID:         req.PID,
		User:        req.User,
		Sandbox:     req.Sandbox,
		TLSGuard:    req.TLSGuard,
		CreatedAt:   req.CreatedAt,
	}
}

func convertHistory(e prompt.HistoryEntry) HistoryEntry {
	return HistoryEntry{
		Prompt:     convertRequest(e.Request),
		Resolution: string(e.Resolution),
		Scope:      e.Result.Scope.String(),
		Rule:       e.Result.Rule,
		ResolvedAt: e.ResolvedAt,
	}
}
