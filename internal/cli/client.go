// Package cli provides clients for a running fw-prompt server: the HTTP
// monitor API and the D-Bus control surface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client communicates with the fw-prompt HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(serverAddr, token string) *Client {
	return &Client{
		baseURL: "http://" + serverAddr,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Prompt describes one prompt request. The cli package mirrors the API
// types instead of importing internal/api.
type Prompt struct {
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

// Status is the response from the status endpoint.
type Status struct {
	Running bool     `json:"running"`
	Version string   `json:"version"`
	Active  *Prompt  `json:"active,omitempty"`
	Queued  []Prompt `json:"queued"`
}

// HistoryEntry is one answered prompt.
type HistoryEntry struct {
	Prompt     Prompt    `json:"prompt"`
	Resolution string    `json:"resolution"`
	Scope      string    `json:"scope"`
	Rule       string    `json:"rule,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// HistoryResponse is the response from the history endpoint.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is an error response from the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Status returns the active prompt and the queue.
func (c *Client) Status() (*Status, error) {
	var result Status
	if err := c.getJSON("/api/v1/status", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns answered prompts, newest first. A limit of zero returns
// everything the server keeps.
func (c *Client) History(limit int) ([]HistoryEntry, error) {
	path := "/api/v1/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var result HistoryResponse
	if err := c.getJSON(path, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

func (c *Client) getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s", errResp.Error)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
