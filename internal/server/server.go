// Package server exposes a capability store over an HTTP JSON API so
// that multiple relay processes on a machine can share one store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/relaycli/relay/internal/model"
	"github.com/relaycli/relay/internal/store"
)

// Server wraps a store.Store with an HTTP API.
type Server struct {
	store  store.Store
	logger *zap.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// New creates a Server backed by the given store. A nil logger disables
// logging.
func New(st store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  st,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/capabilities", s.handleListCapabilities)
	s.mux.HandleFunc("GET /api/v1/capabilities/{tool}", s.handleGetCapability)
	s.mux.HandleFunc("PUT /api/v1/capabilities/{tool}", s.handlePutCapability)
	s.mux.HandleFunc("GET /api/v1/failures/{tool}", s.handleGetFailure)
	s.mux.HandleFunc("PUT /api/v1/failures/{tool}", s.handlePutFailure)
	s.mux.HandleFunc("GET /api/v1/attempts", s.handleListAttempts)
	s.mux.HandleFunc("POST /api/v1/attempts", s.handleRecordAttempt)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
}

// Handler returns the root HTTP handler, useful for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the server on addr and blocks until Shutdown
// is called or the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListCapabilities(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []model.CapabilityRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetCapability(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	rec, err := s.store.GetCapability(r.Context(), tool)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("no capability record for %q", tool))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutCapability(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	var rec model.CapabilityRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if rec.Tool == "" {
		rec.Tool = tool
	}
	if rec.Tool != tool {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("tool mismatch: path %q, body %q", tool, rec.Tool))
		return
	}
	if err := s.store.PutCapability(r.Context(), rec); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetFailure(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	rec, err := s.store.GetFailure(r.Context(), tool)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("no failure record for %q", tool))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutFailure(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	var rec model.FailureRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if rec.Tool == "" {
		rec.Tool = tool
	}
	if err := s.store.PutFailure(r.Context(), rec); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	opts := store.AttemptOpts{
		Tool:     r.URL.Query().Get("tool"),
		FailOnly: r.URL.Query().Get("failed") == "true",
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid since: %w", err))
			return
		}
		opts.Since = t
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", limit))
			return
		}
		opts.Limit = n
	}
	attempts, err := s.store.ListAttempts(r.Context(), opts)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var a model.Attempt
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}
	if err := s.store.RecordAttempt(r.Context(), a); err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
