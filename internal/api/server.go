// Package api implements the read-only status HTTP surface: health and
// status queries plus a live telemetry stream over websocket. Nothing
// here mutates the engine; commands stay out of this surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/visorlabs/headsetd/internal/buildinfo"
	"github.com/visorlabs/headsetd/internal/engine"
)

// StatusSource is the engine-side view the server needs. Status must be
// safe to call concurrently with tick processing.
type StatusSource interface {
	Status() engine.Status
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the status HTTP server.
type Server struct {
	address string
	port    int
	source  StatusSource
	hub     *Hub
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a status server. hub may be nil, in which case the
// /stream endpoint responds 404.
func NewServer(address string, port int, source StatusSource, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		source:  source,
		hub:     hub,
		logger:  logger,
	}
}

// Start runs the HTTP server. It blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.hub != nil {
		mux.HandleFunc("GET /stream", s.hub.handleStream)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // /stream holds the connection open
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting status server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()

	code := http.StatusOK
	if st.State == engine.StateError.String() || st.State == engine.StateShutdown.String() {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"state": st.State}, s.logger)
}

// statusResponse wraps the engine status with build metadata.
type statusResponse struct {
	engine.Status
	Build map[string]string `json:"build"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Status: s.source.Status(),
		Build:  buildinfo.Info(),
	}, s.logger)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
