package wire

// MessagePayload is the shape of one chat-style message nested inside
// NewMessage and RoomHistory, matching spec §6's
// `message:{sender, content, timestamp, message_type}`.
type MessagePayload struct {
	Sender      string `json:"sender"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	MessageType string `json:"message_type"`
}

// RoomSummary is the shape of one room entry in RoomsList.
type RoomSummary struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	Phase    string `json:"phase"`
}

// Connection is sent once per connection immediately after it opens.
type Connection struct {
	Type            OutboundType `json:"type"`
	ConnectionID    string       `json:"connection_id"`
	ServerRestartID string       `json:"server_restart_id"`
}

func NewConnection(connectionID, serverRestartID string) Connection {
	return Connection{Type: OutboundConnection, ConnectionID: connectionID, ServerRestartID: serverRestartID}
}

// RoomsList answers get_rooms.
type RoomsList struct {
	Type  OutboundType  `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

func NewRoomsList(rooms []RoomSummary) RoomsList {
	return RoomsList{Type: OutboundRoomsList, Rooms: rooms}
}

// RoomCreated answers create_room.
type RoomCreated struct {
	Type     OutboundType `json:"type"`
	RoomID   string       `json:"room_id"`
	RoomName string       `json:"room_name"`
}

func NewRoomCreated(roomID, roomName string) RoomCreated {
	return RoomCreated{Type: OutboundRoomCreated, RoomID: roomID, RoomName: roomName}
}

// RoomDeleted answers delete_room.
type RoomDeleted struct {
	Type     OutboundType `json:"type"`
	RoomID   string       `json:"room_id"`
	RoomName string       `json:"room_name"`
}

func NewRoomDeleted(roomID, roomName string) RoomDeleted {
	return RoomDeleted{Type: OutboundRoomDeleted, RoomID: roomID, RoomName: roomName}
}

// RoomJoined answers join_room.
type RoomJoined struct {
	Type   OutboundType `json:"type"`
	RoomID string       `json:"room_id"`
}

func NewRoomJoined(roomID string) RoomJoined {
	return RoomJoined{Type: OutboundRoomJoined, RoomID: roomID}
}

// RoomHistory answers get_room_history.
type RoomHistory struct {
	Type     OutboundType     `json:"type"`
	RoomID   string           `json:"room_id"`
	Messages []MessagePayload `json:"messages"`
}

func NewRoomHistory(roomID string, messages []MessagePayload) RoomHistory {
	return RoomHistory{Type: OutboundRoomHistory, RoomID: roomID, Messages: messages}
}

// NewMessageEvent is sent once per Turn as it is appended.
type NewMessageEvent struct {
	Type      OutboundType   `json:"type"`
	RoomID    string         `json:"room_id"`
	MessageID string         `json:"message_id"`
	AgentName string         `json:"agent_name,omitempty"`
	Message   MessagePayload `json:"message"`
}

func NewNewMessageEvent(roomID, messageID, agentName string, msg MessagePayload) NewMessageEvent {
	return NewMessageEvent{Type: OutboundNewMessage, RoomID: roomID, MessageID: messageID, AgentName: agentName, Message: msg}
}

// AgentScore is one agent's SVR tuple rendered for the wire.
type AgentScore struct {
	AgentID string  `json:"agent_id"`
	Stop    float64 `json:"stop"`
	Value   float64 `json:"value"`
	Repeat  float64 `json:"repeat"`
	Err     string  `json:"error,omitempty"`
}

// SVRComputedEvent mirrors internal/event.SVRComputedEvent onto the wire.
type SVRComputedEvent struct {
	Type   OutboundType `json:"type"`
	RoomID string       `json:"room_id"`
	Scores []AgentScore `json:"scores"`
}

func NewSVRComputedEvent(roomID string, scores []AgentScore) SVRComputedEvent {
	return SVRComputedEvent{Type: OutboundSVRComputed, RoomID: roomID, Scores: scores}
}

// DecisionMadeEvent mirrors internal/event.DecisionMadeEvent onto the wire.
type DecisionMadeEvent struct {
	Type            OutboundType `json:"type"`
	RoomID          string       `json:"room_id"`
	Action          string       `json:"action"`
	SelectedAgentID string       `json:"selected_agent_id,omitempty"`
	Reason          string       `json:"reason"`
}

func NewDecisionMadeEvent(roomID, action, selectedAgentID, reason string) DecisionMadeEvent {
	return DecisionMadeEvent{Type: OutboundDecisionMade, RoomID: roomID, Action: action, SelectedAgentID: selectedAgentID, Reason: reason}
}

// PhaseChangedEvent mirrors internal/event.PhaseChangeEvent onto the wire.
type PhaseChangedEvent struct {
	Type   OutboundType `json:"type"`
	RoomID string       `json:"room_id"`
	Phase  string       `json:"phase"`
}

func NewPhaseChangedEvent(roomID, phase string) PhaseChangedEvent {
	return PhaseChangedEvent{Type: OutboundPhaseChanged, RoomID: roomID, Phase: phase}
}

// TurnStartedEvent mirrors internal/event.TurnStartedEvent onto the wire,
// sent as the Controller begins a Think call but before it resolves.
type TurnStartedEvent struct {
	Type    OutboundType `json:"type"`
	RoomID  string       `json:"room_id"`
	AgentID string       `json:"agent_id"`
	Round   int          `json:"round"`
}

func NewTurnStartedEvent(roomID, agentID string, round int) TurnStartedEvent {
	return TurnStartedEvent{Type: OutboundTurnStarted, RoomID: roomID, AgentID: agentID, Round: round}
}

// TurnFailedEvent mirrors internal/event.TurnFailedEvent onto the wire.
type TurnFailedEvent struct {
	Type    OutboundType `json:"type"`
	RoomID  string       `json:"room_id"`
	AgentID string       `json:"agent_id"`
	Reason  string       `json:"reason"`
}

func NewTurnFailedEvent(roomID, agentID, reason string) TurnFailedEvent {
	return TurnFailedEvent{Type: OutboundTurnFailed, RoomID: roomID, AgentID: agentID, Reason: reason}
}

// RoomStartedEvent mirrors internal/event.RoomStartedEvent onto the wire.
type RoomStartedEvent struct {
	Type   OutboundType `json:"type"`
	RoomID string       `json:"room_id"`
	Topic  string       `json:"topic"`
}

func NewRoomStartedEvent(roomID, topic string) RoomStartedEvent {
	return RoomStartedEvent{Type: OutboundRoomStarted, RoomID: roomID, Topic: topic}
}

// PersistenceDegradedEvent mirrors internal/event.PersistenceDegradedEvent
// onto the wire (spec §7's degraded-persistence warning).
type PersistenceDegradedEvent struct {
	Type         OutboundType `json:"type"`
	RoomID       string       `json:"room_id"`
	BacklogDepth int          `json:"backlog_depth"`
	Cap          int          `json:"cap"`
}

func NewPersistenceDegradedEvent(roomID string, backlogDepth, cap int) PersistenceDegradedEvent {
	return PersistenceDegradedEvent{Type: OutboundPersistenceDegraded, RoomID: roomID, BacklogDepth: backlogDepth, Cap: cap}
}

// ErrorMessage is returned for any rejected inbound message or failed
// operation.
type ErrorMessage struct {
	Type      OutboundType `json:"type"`
	ErrorCode ErrorCode    `json:"error_code"`
	Message   string       `json:"message"`
	RoomID    string       `json:"room_id,omitempty"`
	Action    string       `json:"action,omitempty"`
}

func NewErrorMessage(code ErrorCode, message, roomID, action string) ErrorMessage {
	return ErrorMessage{Type: OutboundError, ErrorCode: code, Message: message, RoomID: roomID, Action: action}
}
