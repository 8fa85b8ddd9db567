// Package clienthub bridges Controller events onto wire messages over
// WebSocket connections (spec §4.8), and dispatches inbound wire commands to
// the FrameworkManager registry and the room store. It is grounded on
// internal/bridge/bridge.go's one-way ownership of outbound event flow and
// internal/mailbox/mailbox.go's push-delivery idiom, with the WebSocket
// transport itself grounded on the pack's mesh.HandleWebSocket
// (upgrade-then-read-loop, JSON envelopes both ways).
package clienthub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/controller"
	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/framework"
	"github.com/discussiond/engine/internal/logging"
	"github.com/discussiond/engine/internal/roomstore"
	"github.com/discussiond/engine/internal/wire"
)

// sendQueueDepth bounds each connection's outbound buffer. A subscriber that
// cannot keep up is dropped rather than slowing every other room down (spec
// §4.8's "best-effort broadcast ... dropped and must re-subscribe").
const sendQueueDepth = 64

// Hub is the process-wide bridge between the event bus and every open
// client connection. One Hub is created per process; it subscribes to the
// shared event.Bus once and fans events out to whichever connections have
// joined the affected room.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*connection     // connection ID -> connection
	rooms map[string]map[string]bool // room ID -> set of connection IDs

	manager *framework.Manager
	store   *roomstore.Store
	bus     *event.Bus
	cfg     *config.Config
	logger  *logging.Logger

	serverRestartID string
	publishTimeout  time.Duration

	subID string
}

// New builds a Hub wired to the given FrameworkManager and RoomStore. It
// subscribes to every event type on bus once; that single subscription is
// the only path by which a Controller's events reach a client connection.
func New(cfg *config.Config, bus *event.Bus, manager *framework.Manager, store *roomstore.Store, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	h := &Hub{
		conns:           make(map[string]*connection),
		rooms:           make(map[string]map[string]bool),
		manager:         manager,
		store:           store,
		bus:             bus,
		cfg:             cfg,
		logger:          logger,
		serverRestartID: uuid.New().String(),
		publishTimeout:  cfg.Engine.PublishTimeout(),
	}
	h.subID = bus.SubscribeAll(h.onEvent)
	return h
}

// Close unsubscribes from the bus and closes every open connection.
func (h *Hub) Close() {
	h.bus.Unsubscribe(h.subID)

	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*connection)
	h.rooms = make(map[string]map[string]bool)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// onEvent is the Hub's sole bus subscription. Every event published by any
// Controller passes through here: events with a wire rendering are
// translated and broadcast to the room's connections, and room.stopped
// additionally clears the room->connection index so a later reused room ID
// starts from a clean subscriber set.
func (h *Hub) onEvent(e event.Event) {
	if roomID, ok := eventRoomID(e); ok {
		if msg := toWireMessage(e); msg != nil {
			h.broadcast(roomID, msg)
		}
	}

	if stopped, ok := e.(event.RoomStoppedEvent); ok {
		h.mu.Lock()
		delete(h.rooms, stopped.RoomID)
		h.mu.Unlock()
	}
}

func (h *Hub) broadcast(roomID string, msg any) {
	h.mu.RLock()
	ids := h.rooms[roomID]
	targets := make([]*connection, 0, len(ids))
	for id := range ids {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

func (h *Hub) registerConnection(c *connection) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.bus.Publish(event.NewConnectionOpenedEvent(c.id))
}

func (h *Hub) unregisterConnection(c *connection, reason string) {
	h.mu.Lock()
	delete(h.conns, c.id)
	for room, ids := range h.rooms {
		delete(ids, c.id)
		if len(ids) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
	h.bus.Publish(event.NewConnectionClosedEvent(c.id, reason))
}

func (h *Hub) joinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]bool)
	}
	h.rooms[roomID][connID] = true
}

// dispatch handles one decoded inbound wire message for a connection,
// calling back into the FrameworkManager/RoomStore and replying on the same
// connection. Unknown or malformed payloads reply with a typed error,
// matching spec §4.8.
func (h *Hub) dispatch(c *connection, msg any) {
	ctx := context.Background()

	switch m := msg.(type) {
	case wire.CreateRoom:
		h.handleCreateRoom(ctx, c, m)
	case wire.JoinRoom:
		h.handleJoinRoom(c, m)
	case wire.SendMessage:
		h.handleSendMessage(c, m)
	case wire.GetRoomHistory:
		h.handleGetRoomHistory(c, m)
	case wire.DeleteRoom:
		h.handleDeleteRoom(ctx, c, m)
	case wire.GetRooms:
		h.handleGetRooms(c)
	case wire.DiscussionControl:
		h.handleDiscussionControl(c, m)
	default:
		c.enqueue(wire.NewErrorMessage(wire.ErrBadRequest, "unrecognized message", "", ""))
	}
}

func (h *Hub) handleCreateRoom(ctx context.Context, c *connection, m wire.CreateRoom) {
	if m.RoomName == "" || len(m.Agents) == 0 {
		c.enqueue(wire.NewErrorMessage(wire.ErrRoomInvalid, "room_name and agents are required", "", "create_room"))
		return
	}

	roomID := uuid.New().String()
	roster := make([]discussion.AgentSpec, 0, len(m.Agents))
	for _, a := range m.Agents {
		roster = append(roster, discussion.AgentSpec{
			ID:          uuid.New().String(),
			DisplayName: a.Name,
			Role:        a.Role,
			Persona:     a.Prompt,
			Backend:     a.Platform,
		})
	}

	if h.store != nil {
		if err := h.store.CreateRoom(roomID, m.RoomName, roster); err != nil {
			c.enqueue(wire.NewErrorMessage(wire.ErrBadRequest, err.Error(), "", "create_room"))
			return
		}
	}

	err := h.manager.CreateRoom(ctx, framework.RoomSpec{RoomID: roomID, Topic: m.RoomName, Agents: roster})
	if err != nil {
		code := wire.ErrBadRequest
		if err == framework.ErrAlreadyActive {
			code = wire.ErrAlreadyActive
		}
		c.enqueue(wire.NewErrorMessage(code, err.Error(), roomID, "create_room"))
		return
	}

	h.joinRoom(c.id, roomID)
	c.enqueue(wire.NewRoomCreated(roomID, m.RoomName))
}

func (h *Hub) handleJoinRoom(c *connection, m wire.JoinRoom) {
	if _, err := h.manager.RoomStatus(m.RoomID); err != nil {
		c.enqueue(wire.NewErrorMessage(wire.ErrRoomNotFound, err.Error(), m.RoomID, "join_room"))
		return
	}
	h.joinRoom(c.id, m.RoomID)
	c.enqueue(wire.NewRoomJoined(m.RoomID))
}

func (h *Hub) handleSendMessage(c *connection, m wire.SendMessage) {
	if err := h.manager.PostUserInput(m.RoomID, m.Content); err != nil {
		c.enqueue(wire.NewErrorMessage(wire.ErrRoomNotFound, err.Error(), m.RoomID, "send_message"))
	}
}

func (h *Hub) handleGetRoomHistory(c *connection, m wire.GetRoomHistory) {
	if h.store == nil {
		c.enqueue(wire.NewRoomHistory(m.RoomID, nil))
		return
	}
	turns, err := h.store.LoadTurns(m.RoomID)
	if err != nil {
		c.enqueue(wire.NewErrorMessage(wire.ErrRoomNotFound, err.Error(), m.RoomID, "get_room_history"))
		return
	}
	messages := make([]wire.MessagePayload, 0, len(turns))
	for _, t := range turns {
		sender := t.AgentID
		msgType := "agent"
		if t.IsUser() {
			msgType = "user"
		}
		messages = append(messages, wire.MessagePayload{
			Sender:      sender,
			Content:     t.Content,
			Timestamp:   t.CreatedAt.Unix(),
			MessageType: msgType,
		})
	}
	c.enqueue(wire.NewRoomHistory(m.RoomID, messages))
}

func (h *Hub) handleDeleteRoom(ctx context.Context, c *connection, m wire.DeleteRoom) {
	var roomName string
	if h.store != nil {
		if manifest, err := h.store.Manifest(m.RoomID); err == nil {
			roomName = manifest.RoomName
		}
	}

	if err := h.manager.StopRoom(ctx, m.RoomID); err != nil && err != framework.ErrUnknownRoom {
		c.enqueue(wire.NewErrorMessage(wire.ErrBadRequest, err.Error(), m.RoomID, "delete_room"))
		return
	}
	if h.store != nil {
		_ = h.store.DeleteRoom(m.RoomID)
	}
	h.broadcast(m.RoomID, wire.NewRoomDeleted(m.RoomID, roomName))
}

func (h *Hub) handleGetRooms(c *connection) {
	statuses := h.manager.AllStatus()
	rooms := make([]wire.RoomSummary, 0, len(statuses))
	for _, st := range statuses {
		rooms = append(rooms, wire.RoomSummary{RoomID: st.RoomID, RoomName: st.Topic, Phase: string(st.Phase)})
	}
	c.enqueue(wire.NewRoomsList(rooms))
}

func (h *Hub) handleDiscussionControl(c *connection, m wire.DiscussionControl) {
	var cmd controller.Command
	switch m.Action {
	case wire.ControlPause:
		cmd = controller.CmdPause
	case wire.ControlResume:
		cmd = controller.CmdResume
	case wire.ControlStop:
		cmd = controller.CmdStop
	default:
		c.enqueue(wire.NewErrorMessage(wire.ErrBadRequest, fmt.Sprintf("unknown action %q", m.Action), m.RoomID, "discussion_control"))
		return
	}
	if err := h.manager.Control(m.RoomID, cmd); err != nil {
		c.enqueue(wire.NewErrorMessage(wire.ErrRoomNotFound, err.Error(), m.RoomID, "discussion_control"))
	}
}
