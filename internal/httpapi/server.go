// Package httpapi exposes the engine's out-of-core HTTP surface (spec §6):
// room CRUD, history/export, discussion control, and settings, layered
// alongside the WebSocket-based ClientHub. Grounded on
// internal/server/server.go's Server{mux *http.ServeMux}/routes() shape,
// using Go's method-pattern ServeMux routing rather than a third-party
// router since no example repo in the pack pulls one in.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/framework"
	"github.com/discussiond/engine/internal/logging"
	"github.com/discussiond/engine/internal/roomstore"
)

// Server is the engine's REST surface. It holds no state of its own; every
// handler delegates to the FrameworkManager/RoomStore it was built with.
type Server struct {
	mux     *http.ServeMux
	cfg     *config.Config
	manager *framework.Manager
	store   *roomstore.Store
	logger  *logging.Logger
}

// New builds a Server with every route registered.
func New(cfg *config.Config, manager *framework.Manager, store *roomstore.Store, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		cfg:     cfg,
		manager: manager,
		store:   store,
		logger:  logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("DELETE /api/rooms/{id}", s.handleDeleteRoom)
	s.mux.HandleFunc("GET /api/rooms/{id}/history", s.handleRoomHistory)
	s.mux.HandleFunc("GET /api/rooms/{id}/export", s.handleRoomExport)
	s.mux.HandleFunc("GET /api/rooms/{id}/agents", s.handleRoomAgents)

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/settings", s.handlePostSettings)
	s.mux.HandleFunc("POST /api/test-connection", s.handleTestConnection)

	s.mux.HandleFunc("GET /api/discussion/status/{id}", s.handleDiscussionStatus)
	s.mux.HandleFunc("POST /api/discussion/control/{id}", s.handleDiscussionControl)
	s.mux.HandleFunc("POST /api/discussion/start", s.handleDiscussionStart)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error_code": code, "message": msg})
}
