package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	auth       *Auth
	wsHandler  *WSHandler
	listener   net.Listener
}

// NewServer listens on addr and routes the API over feed. Every route
// requires auth.
func NewServer(addr string, feed Feed, auth *Auth) (*Server, error) {
	handlers := NewHandlers(feed)
	wsHandler := NewWSHandler(feed)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/v1/status", handlers.HandleStatus)
	apiMux.HandleFunc("/api/v1/history", handlers.HandleHistory)
	apiMux.HandleFunc("/api/v1/ws", wsHandler.HandleWS)

	rootMux := http.NewServeMux()
	rootMux.Handle("/api/", auth.Middleware(apiMux))

	// Listen first to catch address-in-use errors early.
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           rootMux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		auth:      auth,
		wsHandler: wsHandler,
		listener:  listener,
	}, nil
}

// Start begins serving HTTP requests. This is non-blocking.
func (s *Server) Start() error {
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown disconnects event stream clients and gracefully stops the
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHandler.CloseAll()
	err := s.httpServer.Shutdown(ctx)
	// Shutdown leaves the listener open if Serve was never called.
	if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}

// TokenFilePath returns the path to the token file.
func (s *Server) TokenFilePath() string {
	return s.auth.FilePath()
}
