package clienthub

import (
	"strconv"

	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/wire"
)

// toWireMessage renders one internal event onto its wire counterpart.
// Events with no client-facing representation (e.g. MetricsUpdateEvent)
// return nil and are silently dropped by Hub.onEvent.
func toWireMessage(evt event.Event) any {
	switch e := evt.(type) {
	case event.TurnAppendedEvent:
		msgType := "agent"
		sender := e.AgentID
		if e.AgentID == "user" {
			msgType = "user"
		}
		return wire.NewNewMessageEvent(e.RoomID, strconv.FormatInt(e.TurnID, 10), sender, wire.MessagePayload{
			Sender:      sender,
			Content:     e.Content,
			Timestamp:   e.Timestamp().Unix(),
			MessageType: msgType,
		})
	case event.SVRComputedEvent:
		scores := make([]wire.AgentScore, 0, len(e.Scores))
		for _, s := range e.Scores {
			scores = append(scores, wire.AgentScore{
				AgentID: s.AgentID, Stop: s.Stop, Value: s.Value, Repeat: s.Repeat, Err: s.Err,
			})
		}
		return wire.NewSVRComputedEvent(e.RoomID, scores)
	case event.DecisionMadeEvent:
		return wire.NewDecisionMadeEvent(e.RoomID, string(e.Outcome), e.SelectedAgentID, e.Rule)
	case event.PhaseChangeEvent:
		return wire.NewPhaseChangedEvent(e.RoomID, string(e.CurrentPhase))
	case event.RoomStoppedEvent:
		return wire.NewPhaseChangedEvent(e.RoomID, "stopped")
	case event.TurnStartedEvent:
		return wire.NewTurnStartedEvent(e.RoomID, e.AgentID, e.Round)
	case event.TurnFailedEvent:
		return wire.NewTurnFailedEvent(e.RoomID, e.AgentID, e.Reason)
	case event.RoomStartedEvent:
		return wire.NewRoomStartedEvent(e.RoomID, e.Topic)
	case event.PersistenceDegradedEvent:
		return wire.NewPersistenceDegradedEvent(e.RoomID, e.BacklogDepth, e.Cap)
	default:
		return nil
	}
}

// eventRoomID extracts the room an event belongs to, for routing through
// Hub.broadcast. Events with no room association (connection lifecycle,
// metrics) are not broadcastable and are excluded from toWireMessage's cases
// above, so this only needs to cover the room-scoped event types.
func eventRoomID(evt event.Event) (string, bool) {
	switch e := evt.(type) {
	case event.TurnAppendedEvent:
		return e.RoomID, true
	case event.SVRComputedEvent:
		return e.RoomID, true
	case event.DecisionMadeEvent:
		return e.RoomID, true
	case event.PhaseChangeEvent:
		return e.RoomID, true
	case event.RoomStoppedEvent:
		return e.RoomID, true
	case event.TurnStartedEvent:
		return e.RoomID, true
	case event.TurnFailedEvent:
		return e.RoomID, true
	case event.RoomStartedEvent:
		return e.RoomID, true
	case event.PersistenceDegradedEvent:
		return e.RoomID, true
	default:
		return "", false
	}
}
