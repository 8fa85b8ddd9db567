package clienthub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

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

func testHub(t *testing.T) (*Hub, *httptest.Server, func()) {
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
	hub := New(cfg, bus, manager, store, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWebSocket)
	srv := httptest.NewServer(mux)

	cleanup := func() {
		srv.Close()
		hub.Close()
		store.Close()
		_ = manager.StopAll(context.Background())
	}
	return hub, srv, cleanup
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readTyped(t *testing.T, conn *websocket.Conn, wantType string, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if m["type"] == wantType {
			return m
		}
	}
}

func TestHub_ConnectionReceivesConnectionMessage(t *testing.T) {
	_, srv, cleanup := testHub(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	m := readTyped(t, conn, "connection", time.Second)
	if m["connection_id"] == "" {
		t.Error("expected a non-empty connection_id")
	}
	if m["server_restart_id"] == "" {
		t.Error("expected a non-empty server_restart_id")
	}
}

func TestHub_CreateRoomThenJoinThenReceiveMessages(t *testing.T) {
	_, srv, cleanup := testHub(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()
	readTyped(t, conn, "connection", time.Second)

	createMsg := map[string]any{
		"type":      "create_room",
		"room_name": "ship it?",
		"agents": []map[string]any{
			{"name": "alpha", "role": "skeptic", "prompt": "push back"},
		},
	}
	if err := conn.WriteJSON(createMsg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	created := readTyped(t, conn, "room_created", time.Second)
	roomID, _ := created["room_id"].(string)
	if roomID == "" {
		t.Fatal("expected room_created to carry a room_id")
	}

	// The Controller starts running on CreateRoom and should produce at
	// least one new_message event before hitting its 1-turn budget.
	readTyped(t, conn, "new_message", 2*time.Second)
}

func TestHub_TickEventsReachTheWireNotJustNewMessage(t *testing.T) {
	// Every event a tick emits (spec §5's svr_computed -> decision_made ->
	// turn_started -> turn_completed/turn_failed order) must reach a
	// subscribed connection, not only turn.appended's new_message
	// rendering.
	_, srv, cleanup := testHub(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()
	readTyped(t, conn, "connection", time.Second)

	createMsg := map[string]any{
		"type":      "create_room",
		"room_name": "ship it?",
		"agents": []map[string]any{
			{"name": "alpha", "role": "skeptic", "prompt": "push back"},
		},
	}
	if err := conn.WriteJSON(createMsg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	readTyped(t, conn, "room_created", time.Second)

	readTyped(t, conn, "svr_computed", 2*time.Second)
	readTyped(t, conn, "decision_made", 2*time.Second)
	readTyped(t, conn, "turn_started", 2*time.Second)
}

func TestHub_DuplicateCreateRoomNameStillSucceeds(t *testing.T) {
	// room IDs are server-generated (uuid), so two create_room calls with
	// the same room_name are two distinct rooms, not a conflict.
	_, srv, cleanup := testHub(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()
	readTyped(t, conn, "connection", time.Second)

	createMsg := map[string]any{
		"type":      "create_room",
		"room_name": "dup",
		"agents":    []map[string]any{{"name": "alpha", "role": "r", "prompt": "p"}},
	}
	if err := conn.WriteJSON(createMsg); err != nil {
		t.Fatalf("WriteJSON (1): %v", err)
	}
	first := readTyped(t, conn, "room_created", time.Second)

	if err := conn.WriteJSON(createMsg); err != nil {
		t.Fatalf("WriteJSON (2): %v", err)
	}
	second := readTyped(t, conn, "room_created", time.Second)

	if first["room_id"] == second["room_id"] {
		t.Error("expected two distinct room IDs for two create_room calls")
	}
}

func TestHub_UnknownMessageTypeRepliesWithBadRequest(t *testing.T) {
	_, srv, cleanup := testHub(t)
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()
	readTyped(t, conn, "connection", time.Second)

	if err := conn.WriteJSON(map[string]any{"type": "fly_to_moon"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	errMsg := readTyped(t, conn, "error", time.Second)
	if errMsg["error_code"] != string("BAD_REQUEST") {
		t.Errorf("error_code = %v, want BAD_REQUEST", errMsg["error_code"])
	}
}
