package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/discussiond/engine/internal/agentbackend"
	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/framework"
	"github.com/discussiond/engine/internal/roomstore"
)

type fakeBackend struct{}

func (fakeBackend) Name() agentbackend.Name { return "fake" }
func (fakeBackend) DisplayName() string     { return "fake" }
func (fakeBackend) Think(ctx context.Context, systemPrompt string, history []discussion.Turn, params agentbackend.ThinkParams) (agentbackend.ThinkResult, error) {
	return agentbackend.ThinkResult{Content: "ack", TokensUsed: 1}, nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Engine.MaxTurns = 1
	cfg.Engine.ThinkTimeoutMs = 200
	cfg.Engine.SVRDeadlineMs = 200
	cfg.Engine.PublishTimeoutMs = 200
	cfg.Engine.MinRoundsBeforeStop = 100

	bus := event.NewBus()
	store := roomstore.New(t.TempDir())
	manager := framework.NewManager(cfg, bus, fakeBackend{})
	t.Cleanup(func() {
		_ = manager.StopAll(context.Background())
		store.Close()
	})

	return New(cfg, manager, store, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, r)
	return rec
}

func TestServer_CreateThenListRooms(t *testing.T) {
	srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/rooms", createRoomRequest{
		RoomName: "launch review",
		Agents:   []agentView{{Name: "alpha", Role: "skeptic", Prompt: "push back"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create room: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created roomView
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.RoomID == "" {
		t.Fatal("expected a non-empty room_id")
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/rooms", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list rooms: status = %d", rec.Code)
	}
	var listing struct {
		Rooms []roomView `json:"rooms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listing.Rooms) != 1 || listing.Rooms[0].RoomID != created.RoomID {
		t.Fatalf("expected one room matching %q, got %+v", created.RoomID, listing.Rooms)
	}
}

func TestServer_CreateRoomRejectsMissingAgents(t *testing.T) {
	srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/rooms", createRoomRequest{RoomName: "no agents"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
}

func TestServer_DeleteUnknownRoomIsNotAnError(t *testing.T) {
	srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodDelete, "/api/rooms/does-not-exist", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204; body = %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RoomHistoryUnknownRoomReturnsNotFound(t *testing.T) {
	srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/rooms/does-not-exist/history", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServer_DiscussionControlUnknownActionIsBadRequest(t *testing.T) {
	srv := setupTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/rooms", createRoomRequest{
		RoomName: "room",
		Agents:   []agentView{{Name: "alpha", Role: "r", Prompt: "p"}},
	})
	var created roomView
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, srv, http.MethodPost, "/api/discussion/control/"+created.RoomID, controlRequest{Action: "levitate"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
}

func TestServer_GetSettingsOmitsAPIKey(t *testing.T) {
	srv := setupTestServer(t)
	srv.cfg.Agent.HTTP.APIKey = "super-secret"

	rec := doJSON(t, srv, http.MethodGet, "/api/settings", nil)
	if bytes.Contains(rec.Body.Bytes(), []byte("super-secret")) {
		t.Fatal("settings response leaked api_key")
	}
}
