package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"integrationhub/internal/configentry"
	"integrationhub/internal/entity"
	"integrationhub/internal/hub"

	"go.uber.org/zap"
)

// Backend is the part of the hub the API serves
type Backend interface {
	Numbers() *entity.NumberPlatform
	Manager() *configentry.Manager
	Diagnostics(ctx context.Context, entryID string) (map[string]any, error)
}

// Server provides HTTP API endpoints for the hub
type Server struct {
	backend Backend
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(backend Backend, logger *zap.Logger, port int) *Server {
	s := &Server{
		backend: backend,
		logger:  logger.Named("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/entities", s.handleGetEntities)
	mux.HandleFunc("GET /api/config_entries", s.handleGetConfigEntries)
	mux.HandleFunc("POST /api/config_entries/{id}/reload", s.handleReloadConfigEntry)
	mux.HandleFunc("POST /api/services/number/set_value", s.handleSetValue)
	mux.HandleFunc("GET /api/diagnostics/{entry_id}", s.handleDiagnostics)
	return mux
}

// Handler returns the server's request router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// SetValueRequest is the body of the number set_value service
type SetValueRequest struct {
	EntityID string   `json:"entity_id"`
	Value    *float64 `json:"value"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// handleGetEntities returns the state of every loaded entity
func (s *Server) handleGetEntities(w http.ResponseWriter, r *http.Request) {
	states := s.backend.Numbers().States()
	s.writeJSON(w, http.StatusOK, states)

	s.logger.Debug("Entities request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("entities", len(states)))
}

// handleGetConfigEntries returns every config entry with its state
func (s *Server) handleGetConfigEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.backend.Manager().Entries()
	out := make([]configentry.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReloadConfigEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := s.backend.Manager().Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "config entry not found: "+id)
		return
	}

	if err := s.backend.Manager().Reload(r.Context(), id); err != nil {
		s.logger.Error("Failed to reload config entry", zap.String("entry_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Config entry reloaded",
		zap.String("entry_id", id),
		zap.String("state", string(entry.State())))
	s.writeJSON(w, http.StatusOK, entry.Snapshot())
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	var req SetValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EntityID == "" || req.Value == nil {
		s.writeError(w, http.StatusBadRequest, "entity_id and value are required")
		return
	}

	err := s.backend.Numbers().SetValue(r.Context(), req.EntityID, *req.Value)
	var opErr *entity.OperationError
	switch {
	case err == nil:
	case errors.Is(err, entity.ErrEntityNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, entity.ErrInvalidValue):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &opErr):
		s.logger.Warn("Number operation failed",
			zap.String("entity_id", req.EntityID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, opErr.Message)
		return
	default:
		s.logger.Error("Failed to set number value",
			zap.String("entity_id", req.EntityID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	st, _ := s.backend.Numbers().State(req.EntityID)
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("entry_id")
	diag, err := s.backend.Diagnostics(r.Context(), id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, diag)
	case errors.Is(err, hub.ErrEntryNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hub.ErrEntryNotLoaded), errors.Is(err, hub.ErrDiagnosticsUnsupported):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Failed to collect diagnostics", zap.String("entry_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/api/entities", Method: "GET", Description: "State of every loaded number entity"},
	{Path: "/api/config_entries", Method: "GET", Description: "Config entries and their setup state"},
	{Path: "/api/config_entries/{id}/reload", Method: "POST", Description: "Unload and set up a config entry again"},
	{Path: "/api/services/number/set_value", Method: "POST", Description: "Set a number: {\"entity_id\": ..., \"value\": ...}"},
	{Path: "/api/diagnostics/{entry_id}", Method: "GET", Description: "Redacted diagnostics of a loaded config entry"},
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
    <title>Integration Hub API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Integration Hub API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</body>\n</html>\n")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Integration Hub API\n")
	fmt.Fprintf(w, "===================\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "  %-6s %-34s %s\n", ep.Method, ep.Path, ep.Description)
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
