// Package event defines event types for decoupling components in the
// discussion engine. These events enable communication between the
// Controller, FrameworkManager, and ClientHub bridge without requiring
// direct dependencies.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "turn.appended", "room.started")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Room Lifecycle Events
// -----------------------------------------------------------------------------

// RoomStartedEvent is emitted when a FrameworkManager starts a room's
// ContinuousController.
type RoomStartedEvent struct {
	baseEvent
	RoomID string // Unique identifier for the room
	Topic  string // Discussion topic/prompt
}

// NewRoomStartedEvent creates a RoomStartedEvent.
func NewRoomStartedEvent(roomID, topic string) RoomStartedEvent {
	return RoomStartedEvent{
		baseEvent: newBaseEvent("room.started"),
		RoomID:    roomID,
		Topic:     topic,
	}
}

// RoomStoppedEvent is emitted when a room's discussion stops.
type RoomStoppedEvent struct {
	baseEvent
	RoomID string // Unique identifier for the room
	Reason string // Reason for stopping (e.g., "decided", "budget", "user")
}

// NewRoomStoppedEvent creates a RoomStoppedEvent.
func NewRoomStoppedEvent(roomID, reason string) RoomStoppedEvent {
	return RoomStoppedEvent{
		baseEvent: newBaseEvent("room.stopped"),
		RoomID:    roomID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Turn Events
// -----------------------------------------------------------------------------

// TurnAppendedEvent is emitted when an agent's turn is appended to a room's
// DiscussionContext.
type TurnAppendedEvent struct {
	baseEvent
	RoomID      string // Room the turn belongs to
	TurnID      int64  // Monotonic per-room turn ID
	AgentID     string // Agent that produced the turn
	Content     string // The turn's text, forwarded onto the wire verbatim
	TokensUsed  int    // Tokens consumed producing this turn
	ContentSize int    // Length of the turn content, in runes
}

// NewTurnAppendedEvent creates a TurnAppendedEvent.
func NewTurnAppendedEvent(roomID string, turnID int64, agentID, content string, tokensUsed, contentSize int) TurnAppendedEvent {
	return TurnAppendedEvent{
		baseEvent:   newBaseEvent("turn.appended"),
		RoomID:      roomID,
		TurnID:      turnID,
		AgentID:     agentID,
		Content:     content,
		TokensUsed:  tokensUsed,
		ContentSize: contentSize,
	}
}

// TurnStartedEvent is emitted when the Controller begins a Think call for the
// selected agent, before the call resolves.
type TurnStartedEvent struct {
	baseEvent
	RoomID  string // Room the turn belongs to
	AgentID string // Agent the Controller is calling Think on
	Round   int    // Round this attempt belongs to
}

// NewTurnStartedEvent creates a TurnStartedEvent.
func NewTurnStartedEvent(roomID, agentID string, round int) TurnStartedEvent {
	return TurnStartedEvent{
		baseEvent: newBaseEvent("turn.started"),
		RoomID:    roomID,
		AgentID:   agentID,
		Round:     round,
	}
}

// TurnFailedEvent is emitted when a Think call fails and is not going to
// produce a Turn (a Permanent or exhausted-substitution failure).
type TurnFailedEvent struct {
	baseEvent
	RoomID  string // Room the attempt belongs to
	AgentID string // Agent whose Think call failed
	Reason  string // Human-readable failure reason
}

// NewTurnFailedEvent creates a TurnFailedEvent.
func NewTurnFailedEvent(roomID, agentID, reason string) TurnFailedEvent {
	return TurnFailedEvent{
		baseEvent: newBaseEvent("turn.failed"),
		RoomID:    roomID,
		AgentID:   agentID,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// SVR / Decision Events
// -----------------------------------------------------------------------------

// AgentScore is a wire-agnostic rendering of one agent's SVR tuple, carried
// on SVRComputedEvent so subscribers (the ClientHub bridge in particular)
// don't need to import internal/svr just to forward scores onto the wire.
type AgentScore struct {
	AgentID string
	Stop    float64
	Value   float64
	Repeat  float64
	Err     string // empty unless this agent's scoring call failed
}

// SVRComputedEvent is emitted when a ParallelSVREngine pass completes for a round.
type SVRComputedEvent struct {
	baseEvent
	RoomID       string       // Room the pass was computed for
	RoundIndex   int          // Round this pass belongs to
	Scores       []AgentScore // One entry per agent scored this pass
	TimedOutOnly bool         // True if the pass hit its deadline before every agent scored
}

// NewSVRComputedEvent creates an SVRComputedEvent.
func NewSVRComputedEvent(roomID string, roundIndex int, scores []AgentScore, timedOutOnly bool) SVRComputedEvent {
	return SVRComputedEvent{
		baseEvent:    newBaseEvent("svr.computed"),
		RoomID:       roomID,
		RoundIndex:   roundIndex,
		Scores:       scores,
		TimedOutOnly: timedOutOnly,
	}
}

// Decision represents the closed set of outcomes an SVRDecider can reach.
type Decision string

const (
	DecisionContinue       Decision = "continue"
	DecisionStop           Decision = "stop"
	DecisionPause          Decision = "pause"
	DecisionRedirectToUser Decision = "redirect_to_user"
)

// DecisionMadeEvent is emitted when an SVRDecider reaches a decision for a round.
type DecisionMadeEvent struct {
	baseEvent
	RoomID          string   // Room the decision applies to
	RoundIndex      int      // Round the decision was reached for
	Outcome         Decision // The decision outcome
	SelectedAgentID string   // Set only when Outcome is DecisionContinue
	Rule            string   // Name of the first-match rule that fired
}

// NewDecisionMadeEvent creates a DecisionMadeEvent.
func NewDecisionMadeEvent(roomID string, roundIndex int, outcome Decision, selectedAgentID, rule string) DecisionMadeEvent {
	return DecisionMadeEvent{
		baseEvent:       newBaseEvent("decision.made"),
		RoomID:          roomID,
		RoundIndex:      roundIndex,
		Outcome:         outcome,
		SelectedAgentID: selectedAgentID,
		Rule:            rule,
	}
}

// -----------------------------------------------------------------------------
// Agent Health Events
// -----------------------------------------------------------------------------

// AgentSubstitutedEvent is emitted when the Controller substitutes a
// degraded agent for a fresh one within its per-round substitution budget.
type AgentSubstitutedEvent struct {
	baseEvent
	RoomID       string // Room the substitution occurred in
	OldAgentID   string // Agent being replaced
	NewAgentID   string // Replacement agent
	FailureCount int    // Permanent-failure count that triggered the substitution
}

// NewAgentSubstitutedEvent creates an AgentSubstitutedEvent.
func NewAgentSubstitutedEvent(roomID, oldAgentID, newAgentID string, failureCount int) AgentSubstitutedEvent {
	return AgentSubstitutedEvent{
		baseEvent:    newBaseEvent("agent.substituted"),
		RoomID:       roomID,
		OldAgentID:   oldAgentID,
		NewAgentID:   newAgentID,
		FailureCount: failureCount,
	}
}

// AgentDegradedEvent is emitted when an agent accumulates permanent-failure
// counts but has not yet exceeded the substitution threshold.
type AgentDegradedEvent struct {
	baseEvent
	RoomID       string
	AgentID      string
	FailureCount int
	LastError    string
}

// NewAgentDegradedEvent creates an AgentDegradedEvent.
func NewAgentDegradedEvent(roomID, agentID string, failureCount int, lastError string) AgentDegradedEvent {
	return AgentDegradedEvent{
		baseEvent:    newBaseEvent("agent.degraded"),
		RoomID:       roomID,
		AgentID:      agentID,
		FailureCount: failureCount,
		LastError:    lastError,
	}
}

// -----------------------------------------------------------------------------
// Controller Phase Events
// -----------------------------------------------------------------------------

// Phase mirrors the ContinuousController's state machine phase
// (Idle / Running / Paused / Stopping / Stopped), decoupled for event consumers.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhasePaused   Phase = "paused"
	PhaseStopping Phase = "stopping"
	PhaseStopped  Phase = "stopped"
)

// PhaseChangeEvent is emitted when a room's Controller phase changes.
type PhaseChangeEvent struct {
	baseEvent
	RoomID        string // Room the phase transition belongs to
	PreviousPhase Phase  // Previous phase (empty if first transition)
	CurrentPhase  Phase  // New current phase
}

// NewPhaseChangeEvent creates a PhaseChangeEvent.
func NewPhaseChangeEvent(roomID string, previousPhase, currentPhase Phase) PhaseChangeEvent {
	return PhaseChangeEvent{
		baseEvent:     newBaseEvent("phase.changed"),
		RoomID:        roomID,
		PreviousPhase: previousPhase,
		CurrentPhase:  currentPhase,
	}
}

// -----------------------------------------------------------------------------
// Persistence Events
// -----------------------------------------------------------------------------

// PersistenceDegradedEvent is emitted when a room's async save queue backlog
// exceeds the configured persist-lag cap (spec §7).
type PersistenceDegradedEvent struct {
	baseEvent
	RoomID       string // Room whose persistence is lagging
	BacklogDepth int    // Number of unsaved turns queued
	Cap          int    // The configured persist-lag cap that was exceeded
}

// NewPersistenceDegradedEvent creates a PersistenceDegradedEvent.
func NewPersistenceDegradedEvent(roomID string, backlogDepth, cap int) PersistenceDegradedEvent {
	return PersistenceDegradedEvent{
		baseEvent:    newBaseEvent("persistence.degraded"),
		RoomID:       roomID,
		BacklogDepth: backlogDepth,
		Cap:          cap,
	}
}

// -----------------------------------------------------------------------------
// Metrics Events
// -----------------------------------------------------------------------------

// MetricsUpdateEvent is emitted when an agent's token usage is updated.
type MetricsUpdateEvent struct {
	baseEvent
	RoomID       string // Room the metrics belong to
	AgentID      string // Agent the metrics belong to
	InputTokens  int64  // Total input tokens used
	OutputTokens int64  // Total output tokens used
	ThinkCalls   int    // Number of Think calls made
}

// NewMetricsUpdateEvent creates a MetricsUpdateEvent.
func NewMetricsUpdateEvent(roomID, agentID string, inputTokens, outputTokens int64, thinkCalls int) MetricsUpdateEvent {
	return MetricsUpdateEvent{
		baseEvent:    newBaseEvent("metrics.updated"),
		RoomID:       roomID,
		AgentID:      agentID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		ThinkCalls:   thinkCalls,
	}
}

// TotalTokens returns the sum of input and output tokens.
func (e MetricsUpdateEvent) TotalTokens() int64 {
	return e.InputTokens + e.OutputTokens
}

// -----------------------------------------------------------------------------
// Client Connection Events
// -----------------------------------------------------------------------------

// ConnectionOpenedEvent is emitted when a client connects to the ClientHub.
type ConnectionOpenedEvent struct {
	baseEvent
	ConnectionID string // Unique identifier for the connection
}

// NewConnectionOpenedEvent creates a ConnectionOpenedEvent.
func NewConnectionOpenedEvent(connectionID string) ConnectionOpenedEvent {
	return ConnectionOpenedEvent{
		baseEvent:    newBaseEvent("connection.opened"),
		ConnectionID: connectionID,
	}
}

// ConnectionClosedEvent is emitted when a client disconnects from the ClientHub.
type ConnectionClosedEvent struct {
	baseEvent
	ConnectionID string // Unique identifier for the connection
	Reason       string // Reason for closing (e.g., "client_disconnect", "server_shutdown")
}

// NewConnectionClosedEvent creates a ConnectionClosedEvent.
func NewConnectionClosedEvent(connectionID, reason string) ConnectionClosedEvent {
	return ConnectionClosedEvent{
		baseEvent:    newBaseEvent("connection.closed"),
		ConnectionID: connectionID,
		Reason:       reason,
	}
}
