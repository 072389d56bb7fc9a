// Package monitor exposes the coordinator's settlement state over HTTP: a
// JSON status endpoint with per-currency row counts, and a websocket feed
// of scheduler job events. The daemon only starts it when a listen address
// is configured.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/poolhand/payoutd/internal/storage"
	"github.com/poolhand/payoutd/pkg/logging"
)

// Config collects the status server's settings.
type Config struct {
	// Listen is the bind address, for example "127.0.0.1:8532".
	Listen string

	// Stores are the per-currency payout stores reported by /api/status.
	Stores []*storage.Store

	// Log receives server lifecycle messages.
	Log *logging.Logger
}

// Server serves the status endpoint and the event feed.
type Server struct {
	listen string
	stores []*storage.Store
	log    *logging.Logger
	hub    *Hub

	server   *http.Server
	listener net.Listener
}

// New creates a status server. Nothing is served until Start.
func New(cfg *Config) *Server {
	return &Server{
		listen: cfg.Listen,
		stores: cfg.Stores,
		log:    cfg.Log.Component("monitor"),
		hub:    NewHub(cfg.Log),
	}
}

// Hub returns the event hub the scheduler publishes into.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listen address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	s.listener = listener

	go s.hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server error", "error", err)
		}
	}()

	s.log.Info("status server started",
		"addr", listener.Addr().String(),
		"ws", "ws://"+listener.Addr().String()+"/ws")
	return nil
}

// Stop shuts the server down and ends the hub loop.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(ctx)
	s.hub.Stop()
	return err
}

// handleStatus reports per-currency row counts by settlement state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]*storage.Counts, len(s.stores))
	for _, store := range s.stores {
		counts, err := store.Count()
		if err != nil {
			s.log.Error("status count failed", "currency", store.Code(), "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		status[store.Code()] = counts
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
