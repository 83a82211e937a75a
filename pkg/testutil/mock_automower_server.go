// Package testutil provides testing utilities for the hub. This package
// contains a mock mower cloud (REST and websocket) and a harness that runs a
// hub against it.
package testutil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"integrationhub/internal/automowerapi"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// MockAutomowerServer simulates the mower cloud: GET /mowers, the two
// cutting height commands and the event stream at /stream
type MockAutomowerServer struct {
	server *httptest.Server
	token  string

	mowers   map[string]*automowerapi.MowerAttributes
	mowersMu sync.RWMutex

	connections []*connWrapper
	connsMu     sync.Mutex

	commandErr   string
	commandCalls []CommandCall
	statusCalls  int
	callsMu      sync.Mutex
}

type commandRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CuttingHeight *int `json:"cuttingHeight"`
		} `json:"attributes"`
	} `json:"data"`
}

// NewMockAutomowerServer creates a server accepting token
func NewMockAutomowerServer(token string) *MockAutomowerServer {
	return &MockAutomowerServer{
		token:  token,
		mowers: make(map[string]*automowerapi.MowerAttributes),
	}
}

// Start starts the mock server on a free local port
func (s *MockAutomowerServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mowers", s.handleGetMowers)
	mux.HandleFunc("POST /mowers/{id}/settings", s.handleSettings)
	mux.HandleFunc("PATCH /mowers/{id}/workAreas/{workAreaID}", s.handleWorkArea)
	mux.HandleFunc("/stream", s.handleStream)

	s.server = httptest.NewServer(mux)
	return nil
}

// Stop closes every stream connection and the server
func (s *MockAutomowerServer) Stop() error {
	s.connsMu.Lock()
	for _, wrapper := range s.connections {
		wrapper.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()

	if s.server != nil {
		s.server.Close()
	}
	return nil
}

// URL is the REST base URL
func (s *MockAutomowerServer) URL() string {
	return s.server.URL
}

// StreamURL is the websocket URL
func (s *MockAutomowerServer) StreamURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/stream"
}

// SetMower adds or replaces a mower
func (s *MockAutomowerServer) SetMower(id string, attrs *automowerapi.MowerAttributes) {
	s.mowersMu.Lock()
	defer s.mowersMu.Unlock()
	s.mowers[id] = attrs.Clone()
}

// Mower returns a copy of a mower's current attributes
func (s *MockAutomowerServer) Mower(id string) *automowerapi.MowerAttributes {
	s.mowersMu.RLock()
	defer s.mowersMu.RUnlock()
	return s.mowers[id].Clone()
}

// RemoveWorkArea deletes a work area, as when it is removed in the vendor app
func (s *MockAutomowerServer) RemoveWorkArea(mowerID string, workAreaID int) {
	s.mowersMu.Lock()
	defer s.mowersMu.Unlock()
	if m, ok := s.mowers[mowerID]; ok {
		delete(m.WorkAreas, workAreaID)
	}
}

// SetCommandError makes every command fail with a 500 and message.
// An empty message clears it.
func (s *MockAutomowerServer) SetCommandError(message string) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.commandErr = message
}

// PushEvent sends an event to every stream connection
func (s *MockAutomowerServer) PushEvent(ev automowerapi.Event) {
	s.connsMu.Lock()
	wrappers := make([]*connWrapper, len(s.connections))
	copy(wrappers, s.connections)
	s.connsMu.Unlock()

	for _, wrapper := range wrappers {
		wrapper.writeMu.Lock()
		wrapper.conn.WriteJSON(ev)
		wrapper.writeMu.Unlock()
	}
}

// ConnectionCount returns the number of open stream connections
func (s *MockAutomowerServer) ConnectionCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.connections)
}

// GetCommandCalls returns all commands received
func (s *MockAutomowerServer) GetCommandCalls() []CommandCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	calls := make([]CommandCall, len(s.commandCalls))
	copy(calls, s.commandCalls)
	return calls
}

// StatusCalls returns how often GET /mowers was served
func (s *MockAutomowerServer) StatusCalls() int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return s.statusCalls
}

func (s *MockAutomowerServer) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") == "Bearer "+s.token {
		return true
	}
	writeErrors(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
	return false
}

func writeErrors(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"title": title, "detail": detail}},
	})
}

func (s *MockAutomowerServer) handleGetMowers(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}

	s.callsMu.Lock()
	s.statusCalls++
	s.callsMu.Unlock()

	s.mowersMu.RLock()
	body, err := automowerapi.EncodeMowers(s.mowers)
	s.mowersMu.RUnlock()
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, "Internal error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.Write(body)
}

// recordCommand logs the call and reports whether it should succeed
func (s *MockAutomowerServer) recordCommand(w http.ResponseWriter, r *http.Request, workAreaID *int) (int, bool) {
	if !s.authorized(w, r) {
		return 0, false
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Data.Attributes.CuttingHeight == nil {
		writeErrors(w, http.StatusBadRequest, "Bad request", "cuttingHeight is required")
		return 0, false
	}
	height := *req.Data.Attributes.CuttingHeight

	s.callsMu.Lock()
	s.commandCalls = append(s.commandCalls, CommandCall{
		Timestamp:  time.Now(),
		MowerID:    r.PathValue("id"),
		WorkAreaID: workAreaID,
		Height:     height,
	})
	commandErr := s.commandErr
	s.callsMu.Unlock()

	if commandErr != "" {
		writeErrors(w, http.StatusInternalServerError, "Internal error", commandErr)
		return 0, false
	}
	return height, true
}

func (s *MockAutomowerServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	height, ok := s.recordCommand(w, r, nil)
	if !ok {
		return
	}
	id := r.PathValue("id")

	s.mowersMu.Lock()
	m, found := s.mowers[id]
	if found {
		m.CuttingHeight = &height
	}
	s.mowersMu.Unlock()
	if !found {
		writeErrors(w, http.StatusNotFound, "Not found", "unknown mower "+id)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	s.PushEvent(automowerapi.SettingsEvent(id, height))
}

// handleWorkArea updates the area silently; clients must poll to see it
func (s *MockAutomowerServer) handleWorkArea(w http.ResponseWriter, r *http.Request) {
	workAreaID, err := strconv.Atoi(r.PathValue("workAreaID"))
	if err != nil {
		writeErrors(w, http.StatusBadRequest, "Bad request", "invalid work area id")
		return
	}
	height, ok := s.recordCommand(w, r, &workAreaID)
	if !ok {
		return
	}
	id := r.PathValue("id")

	s.mowersMu.Lock()
	m, found := s.mowers[id]
	if found {
		wa, exists := m.WorkAreas[workAreaID]
		found = exists
		wa.CuttingHeight = height
		if exists {
			m.WorkAreas[workAreaID] = wa
		}
	}
	s.mowersMu.Unlock()
	if !found {
		writeErrors(w, http.StatusNotFound, "Not found", fmt.Sprintf("unknown work area %s/%d", id, workAreaID))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *MockAutomowerServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade: %v", err)
		return
	}

	wrapper := &connWrapper{conn: conn}
	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		for i, c := range s.connections {
			if c == wrapper {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	// drain until the client goes away; pings are answered by the default handler
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
