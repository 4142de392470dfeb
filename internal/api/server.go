// Package api exposes the published group states and group commands over a
// local HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/labelmate/labeld/internal/engine"
	"github.com/labelmate/labeld/internal/store"
)

// Server serves group states and accepts turn_on/turn_off commands.
type Server struct {
	addr       string
	registry   *engine.Registry
	manager    *engine.Manager
	store      *store.Store
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, registry *engine.Registry, manager *engine.Manager, st *store.Store) *Server {
	return &Server{
		addr:     fmt.Sprintf("%s:%d", host, port),
		registry: registry,
		manager:  manager,
		store:    st,
	}
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleHealth)
	mux.HandleFunc("GET /groups", s.handleListGroups)
	mux.HandleFunc("GET /groups/{id}", s.handleGetGroup)
	mux.HandleFunc("GET /groups/{id}/commands", s.handleGroupCommands)
	mux.HandleFunc("POST /groups/{id}/turn_on", s.commandHandler(true))
	mux.HandleFunc("POST /groups/{id}/turn_off", s.commandHandler(false))

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.registry.Get(id)
	if !ok {
		http.Error(w, "unknown group", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGroupCommands(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.manager.Get(id); !ok {
		http.Error(w, "unknown group", http.StatusNotFound)
		return
	}

	entries, err := s.store.RecentCommands(id, 50)
	if err != nil {
		log.Error().Err(err).Str("group", id).Msg("Failed to read command ledger")
		http.Error(w, "ledger unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// commandHandler dispatches a group command. The response reflects command
// delivery only; the resulting state arrives through the recompute path.
func (s *Server) commandHandler(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		eng, ok := s.manager.Get(id)
		if !ok {
			http.Error(w, "unknown group", http.StatusNotFound)
			return
		}

		var err error
		if on {
			err = eng.TurnOn(r.Context())
		} else {
			err = eng.TurnOff(r.Context())
		}

		if err != nil {
			log.Warn().Err(err).Str("group", id).Msg("Group command failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": err.Error()})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
