package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/discussiond/engine/internal/agentbackend"
	"github.com/discussiond/engine/internal/controller"
	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/framework"
	"github.com/discussiond/engine/internal/roomstore"
)

type agentView struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
	Backend string `json:"platform,omitempty"`
}

type roomView struct {
	RoomID string      `json:"room_id"`
	Name   string      `json:"room_name"`
	Phase  string      `json:"phase,omitempty"`
	Agents []agentView `json:"agents,omitempty"`
}

// handleListRooms answers GET /api/rooms with every live room's status.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	statuses := s.manager.AllStatus()
	rooms := make([]roomView, 0, len(statuses))
	for _, st := range statuses {
		rooms = append(rooms, roomView{RoomID: st.RoomID, Name: st.Topic, Phase: string(st.Phase)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

type createRoomRequest struct {
	RoomName string      `json:"room_name"`
	Agents   []agentView `json:"agents"`
}

// handleCreateRoom answers POST /api/rooms, creating and immediately
// starting a new room the way send_message/create_room does over the
// WebSocket transport.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.RoomName == "" || len(req.Agents) == 0 {
		writeError(w, http.StatusBadRequest, "ROOM_INVALID", "room_name and agents are required")
		return
	}

	roomID := uuid.New().String()
	roster := make([]discussion.AgentSpec, 0, len(req.Agents))
	for _, a := range req.Agents {
		roster = append(roster, discussion.AgentSpec{
			ID:          uuid.New().String(),
			DisplayName: a.Name,
			Role:        a.Role,
			Persona:     a.Prompt,
			Backend:     a.Backend,
		})
	}

	if s.store != nil {
		if err := s.store.CreateRoom(roomID, req.RoomName, roster); err != nil {
			writeError(w, http.StatusInternalServerError, "BAD_REQUEST", err.Error())
			return
		}
	}

	if err := s.manager.CreateRoom(r.Context(), framework.RoomSpec{RoomID: roomID, Topic: req.RoomName, Agents: roster}); err != nil {
		writeError(w, http.StatusConflict, "ALREADY_ACTIVE", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, roomView{RoomID: roomID, Name: req.RoomName})
}

// handleDeleteRoom answers DELETE /api/rooms/{id}.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	if err := s.manager.StopRoom(r.Context(), roomID); err != nil && !errors.Is(err, framework.ErrUnknownRoom) {
		writeError(w, http.StatusInternalServerError, "BAD_REQUEST", err.Error())
		return
	}
	if s.store != nil {
		if err := s.store.DeleteRoom(roomID); err != nil && !errors.Is(err, roomstore.ErrRoomNotFound) {
			writeError(w, http.StatusInternalServerError, "BAD_REQUEST", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRoomHistory answers GET /api/rooms/{id}/history.
func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "messages": []any{}})
		return
	}

	if _, err := s.store.Manifest(roomID); err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}
	turns, err := s.store.LoadTurns(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "messages": turns})
}

// handleRoomExport answers GET /api/rooms/{id}/export, rendering the room's
// turn log as a Markdown transcript.
func (s *Server) handleRoomExport(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if s.store == nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room store not configured")
		return
	}

	manifest, err := s.store.Manifest(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}
	turns, err := s.store.LoadTurns(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}

	md, err := renderTranscript(manifest, turns)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "BAD_REQUEST", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.md"`, roomID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(md)
}

// handleRoomAgents answers GET /api/rooms/{id}/agents.
func (s *Server) handleRoomAgents(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if s.store == nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room store not configured")
		return
	}

	manifest, err := s.store.Manifest(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}

	agents := make([]agentView, 0, len(manifest.Participants))
	for _, a := range manifest.Participants {
		agents = append(agents, agentView{Name: a.DisplayName, Role: a.Role, Prompt: a.Persona, Backend: a.Backend})
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": roomID, "agents": agents})
}

// handleGetSettings answers GET /api/settings with the subset of config
// that is safe to expose (no API keys).
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_backend":  s.cfg.Agent.Backend,
		"http_endpoint":  s.cfg.Agent.HTTP.Endpoint,
		"max_turns":      s.cfg.Engine.MaxTurns,
		"stop_threshold": s.cfg.SVR.StopThreshold,
	})
}

type settingsRequest struct {
	AgentBackend string `json:"agent_backend"`
	HTTPEndpoint string `json:"http_endpoint"`
	APIKey       string `json:"api_key,omitempty"`
}

// handlePostSettings answers POST /api/settings. The engine's Config is a
// process-wide, load-time-validated record (spec's "single source of
// truth"), so this only mutates the in-memory agent-routing fields that are
// safe to hot-swap between rooms; a full reload still requires a restart.
func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.AgentBackend != "" {
		s.cfg.Agent.Backend = req.AgentBackend
	}
	if req.HTTPEndpoint != "" {
		s.cfg.Agent.HTTP.Endpoint = req.HTTPEndpoint
	}
	if req.APIKey != "" {
		s.cfg.Agent.HTTP.APIKey = req.APIKey
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTestConnection answers POST /api/test-connection, exercising a
// one-off AgentBackend.Think call against the configured backend without
// creating a room.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	backend, err := agentbackend.NewFromConfig(s.cfg, agentbackend.Name(s.cfg.Agent.Backend))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := backend.Think(r.Context(), "connection test", nil, agentbackend.ThinkParams{})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "AGENT_TIMEOUT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sample": result.Content})
}

// handleDiscussionStatus answers GET /api/discussion/status/{id}.
func (s *Server) handleDiscussionStatus(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	st, err := s.manager.RoomStatus(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":       st.RoomID,
		"topic":         st.Topic,
		"phase":         string(st.Phase),
		"round":         st.Round,
		"turns":         st.Turns,
		"participation": st.Participation,
	})
}

type controlRequest struct {
	Action string `json:"action"`
}

// handleDiscussionControl answers POST /api/discussion/control/{id}.
func (s *Server) handleDiscussionControl(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	var req controlRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var cmd controller.Command
	switch strings.ToLower(req.Action) {
	case "pause":
		cmd = controller.CmdPause
	case "resume":
		cmd = controller.CmdResume
	case "stop":
		cmd = controller.CmdStop
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	if err := s.manager.Control(roomID, cmd); err != nil {
		writeError(w, http.StatusNotFound, "ROOM_NOT_FOUND", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startRoomRequest struct {
	RoomName string      `json:"room_name"`
	Agents   []agentView `json:"agents"`
}

// handleDiscussionStart answers POST /api/discussion/start — an alias for
// room creation kept separate from POST /api/rooms because the original
// system exposed discussion start as its own endpoint, decoupled from room
// bookkeeping, for callers that only care about "start talking".
func (s *Server) handleDiscussionStart(w http.ResponseWriter, r *http.Request) {
	s.handleCreateRoom(w, r)
}
