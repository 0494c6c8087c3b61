package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nikicat/fw-prompt/internal/prompt"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// WSMessage is one message on the event stream.
type WSMessage struct {
	Type string `json:"type"`

	// For snapshot
	Status *StatusResponse `json:"status,omitempty"`

	// For prompt_queued / prompt_activated
	Prompt *PromptInfo `json:"prompt,omitempty"`

	// For prompt_resolved / prompt_abandoned
	ID    string `json:"id,omitempty"`
	Scope string `json:"scope,omitempty"`
	Rule  string `json:"rule,omitempty"`
}

// Feed is the subscription side of the prompt manager.
type Feed interface {
	Source
	Subscribe(prompt.Observer)
	Unsubscribe(prompt.Observer)
}

// WSHandler streams manager events to WebSocket clients.
type WSHandler struct {
	feed Feed

	connsMu sync.RWMutex
	conns   map[*wsConnection]struct{}
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(feed Feed) *WSHandler {
	return &WSHandler{
		feed:  feed,
		conns: make(map[*wsConnection]struct{}),
	}
}

// wsConnection represents a single WebSocket connection.
type wsConnection struct {
	handler   *WSHandler
	conn      *websocket.Conn
	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// HandleWS handles WebSocket upgrade requests. Authentication is done by
// the middleware in front of it.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("WebSocket accept failed", "error", err)
		return
	}

	conn.SetReadLimit(maxMessageSize)

	// The connection outlives the HTTP request.
	ctx, cancel := context.WithCancel(context.Background())
	wsc := &wsConnection{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, 256),
		ctx:     ctx,
		cancel:  cancel,
	}

	h.connsMu.Lock()
	h.conns[wsc] = struct{}{}
	h.connsMu.Unlock()

	// Subscribe before the snapshot so no event between them is lost.
	h.feed.Subscribe(wsc)

	if err := wsc.sendSnapshot(); err != nil {
		slog.Error("Failed to send snapshot", "error", err)
		wsc.close()
		return
	}

	go wsc.writePump()
	go wsc.readPump()
}

// OnEvent implements prompt.Observer.
func (wsc *wsConnection) OnEvent(event prompt.Event) {
	msg := eventMessage(event)
	if msg == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	// Drop the message if the client is slow.
	select {
	case wsc.send <- data:
	default:
		slog.Warn("WebSocket send buffer full, dropping message")
	}
}

func eventMessage(event prompt.Event) *WSMessage {
	switch event.Type {
	case prompt.EventQueued, prompt.EventActivated:
		info := convertRequest(event.Request)
		return &WSMessage{Type: "prompt_" + event.Type.String(), Prompt: &info}
	case prompt.EventResolved, prompt.EventAbandoned:
		return &WSMessage{
			Type:  "prompt_" + event.Type.String(),
			ID:    event.Request.ID,
			Scope: event.Result.Scope.String(),
			Rule:  event.Result.Rule,
		}
	default:
		return nil
	}
}

// sendSnapshot sends the current queue state to the client.
func (wsc *wsConnection) sendSnapshot() error {
	status := buildStatus(wsc.handler.feed.Status())
	data, err := json.Marshal(WSMessage{Type: "snapshot", Status: &status})
	if err != nil {
		return err
	}

	// Written directly rather than through the channel.
	ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
	defer cancel()
	return wsc.conn.Write(ctx, websocket.MessageText, data)
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (wsc *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsc.close()
	}()

	for {
		select {
		case <-wsc.ctx.Done():
			return

		case message := <-wsc.send:
			ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
			err := wsc.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Debug("WebSocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(wsc.ctx, writeWait)
			err := wsc.conn.Ping(ctx)
			cancel()
			if err != nil {
				slog.Debug("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

// readPump only detects the client going away; incoming messages are
// ignored.
func (wsc *wsConnection) readPump() {
	defer wsc.close()

	for {
		if _, _, err := wsc.conn.Read(wsc.ctx); err != nil {
			return
		}
	}
}

func (wsc *wsConnection) close() {
	wsc.closeOnce.Do(func() {
		wsc.cancel()
		wsc.handler.feed.Unsubscribe(wsc)

		wsc.handler.connsMu.Lock()
		delete(wsc.handler.conns, wsc)
		wsc.handler.connsMu.Unlock()

		wsc.conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
	})
}

// CloseAll disconnects every client.
func (h *WSHandler) CloseAll() {
	h.connsMu.RLock()
	conns := make([]*wsConnection, 0, len(h.conns))
	for wsc := range h.conns {
		conns = append(conns, wsc)
	}
	h.connsMu.RUnlock()

	for _, wsc := range conns {
		wsc.close()
	}
}

// Connections returns the number of connected clients.
func (h *WSHandler) Connections() int {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	return len(h.conns)
}
