// Package wire defines the closed set of JSON envelopes exchanged between
// a client connection and the discussion engine, and the Decode function
// that turns an arbitrary inbound byte slice into one of them. Internal
// code never branches on a raw "type" string again once a message has
// passed through Decode — it type-switches on the concrete payload type.
package wire

import (
	"encoding/json"
	"fmt"
)

// InboundType is the closed set of message types a client may send.
type InboundType string

const (
	InboundCreateRoom        InboundType = "create_room"
	InboundJoinRoom          InboundType = "join_room"
	InboundSendMessage       InboundType = "send_message"
	InboundGetRoomHistory    InboundType = "get_room_history"
	InboundDeleteRoom        InboundType = "delete_room"
	InboundGetRooms          InboundType = "get_rooms"
	InboundDiscussionControl InboundType = "discussion_control"
)

// OutboundType is the closed set of message types the server may send.
type OutboundType string

const (
	OutboundConnection   OutboundType = "connection"
	OutboundRoomsList    OutboundType = "rooms_list"
	OutboundRoomCreated  OutboundType = "room_created"
	OutboundRoomDeleted  OutboundType = "room_deleted"
	OutboundRoomJoined   OutboundType = "room_joined"
	OutboundRoomHistory  OutboundType = "room_history"
	OutboundNewMessage   OutboundType = "new_message"
	OutboundSVRComputed  OutboundType = "svr_computed"
	OutboundDecisionMade OutboundType = "decision_made"
	OutboundPhaseChanged OutboundType = "phase_changed"
	OutboundTurnStarted  OutboundType = "turn_started"
	OutboundTurnFailed   OutboundType = "turn_failed"
	OutboundRoomStarted  OutboundType = "room_started"
	OutboundPersistenceDegraded OutboundType = "persistence_degraded"
	OutboundError        OutboundType = "error"
)

// ErrorCode is the closed set of stable error identifiers sent in an
// ErrorMessage payload.
type ErrorCode string

const (
	ErrRoomNotFound    ErrorCode = "ROOM_NOT_FOUND"
	ErrRoomInvalid     ErrorCode = "ROOM_INVALID"
	ErrAlreadyActive   ErrorCode = "ALREADY_ACTIVE"
	ErrAgentTimeout    ErrorCode = "AGENT_TIMEOUT"
	ErrAgentPermanent  ErrorCode = "AGENT_PERMANENT"
	ErrAllAgentsFailed ErrorCode = "ALL_AGENTS_FAILED"
	ErrBudgetExceeded  ErrorCode = "BUDGET_EXCEEDED"
	ErrBadRequest      ErrorCode = "BAD_REQUEST"
)

// ControlAction is the closed set of operator commands accepted by
// DiscussionControl.
type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlResume ControlAction = "resume"
	ControlStop   ControlAction = "stop"
)

// AgentSpec is the wire shape of one participant named in a create_room
// request.
type AgentSpec struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// Inbound payload types. Each corresponds to exactly one InboundType and
// is the value Decode returns once it has dispatched on the envelope.

type CreateRoom struct {
	RoomName string      `json:"room_name"`
	Agents   []AgentSpec `json:"agents"`
}

type JoinRoom struct {
	RoomID string `json:"room_id"`
}

type SendMessage struct {
	RoomID    string `json:"room_id"`
	Content   string `json:"content"`
	MessageID string `json:"message_id,omitempty"`
}

type GetRoomHistory struct {
	RoomID string `json:"room_id"`
}

type DeleteRoom struct {
	RoomID string `json:"room_id"`
}

type GetRooms struct{}

type DiscussionControl struct {
	RoomID string        `json:"room_id"`
	Action ControlAction `json:"action"`
}

type envelope struct {
	Type InboundType `json:"type"`
}

// Decode parses a raw inbound message and returns one of the Inbound
// payload types above as an any. The returned value's dynamic type is
// determined solely by the envelope's "type" field; callers use a type
// switch rather than inspecting the string themselves.
func Decode(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("wire: decoding envelope: %w", err)
	}

	switch env.Type {
	case InboundCreateRoom:
		var m CreateRoom
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("wire: decoding create_room: %w", err)
		}
		return m, nil
	case InboundJoinRoom:
		var m JoinRoom
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("wire: decoding join_room: %w", err)
		}
		return m, nil
	case InboundSendMessage:
		var m SendMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("wire: decoding send_message: %w", err)
		}
		return m, nil
	case InboundGetRoomHistory:
		var m GetRoomHistory
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("wire: decoding get_room_history: %w", err)
		}
		return m, nil
	case InboundDeleteRoom:
		var m DeleteRoom
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("wire: decoding delete_room: %w", err)
		}
		return m, nil
	case InboundGetRooms:
		return GetRooms{}, nil
	case InboundDiscussionControl:
		var m DiscussionControl
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("wire: decoding discussion_control: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("wire: unknown inbound type %q", env.Type)
	}
}
