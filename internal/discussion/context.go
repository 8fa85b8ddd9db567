package discussion

import (
	"sync"
	"time"

	discerr "github.com/discussiond/engine/internal/errors"
	"github.com/discussiond/engine/internal/event"
)

// legalPhaseTransitions enumerates the phase graph from spec §4.6:
//
//	Idle -> Running -> (Paused <-> Running)* -> Stopping -> Stopped
var legalPhaseTransitions = map[event.Phase][]event.Phase{
	event.PhaseIdle:     {event.PhaseRunning},
	event.PhaseRunning:  {event.PhasePaused, event.PhaseStopping},
	event.PhasePaused:   {event.PhaseRunning, event.PhaseStopping},
	event.PhaseStopping: {event.PhaseStopped},
	event.PhaseStopped:  {},
}

// DiscussionContext is the append-only state of one room: its roster, topic,
// and turn log. All mutation goes through Append/SetPhase; reads take a
// snapshot so callers never observe a torn update while a writer holds the
// lock. A DiscussionContext belongs to exactly one Controller (spec §3
// invariant 1); nothing here enforces that single-writer guarantee itself,
// it just never reaches for extra locking beyond what concurrent readers
// need.
type DiscussionContext struct {
	mu sync.RWMutex

	RoomID    string
	Topic     string
	Agents    []AgentSpec
	CreatedAt time.Time

	turns           []Turn
	nextTurnID      int64
	round           int
	phase           event.Phase
	startedAt       time.Time
	lastUserInputAt time.Time
}

// NewDiscussionContext creates an empty DiscussionContext for a room with the
// given roster. The roster is copied so later roster edits on the caller's
// slice do not alias engine state. The context starts in PhaseIdle per
// spec §3's lifecycle.
func NewDiscussionContext(roomID, topic string, agents []AgentSpec) *DiscussionContext {
	roster := make([]AgentSpec, len(agents))
	copy(roster, agents)
	return &DiscussionContext{
		RoomID:     roomID,
		Topic:      topic,
		Agents:     roster,
		CreatedAt:  time.Now(),
		nextTurnID: 1,
		phase:      event.PhaseIdle,
	}
}

// RestoreDiscussionContext rebuilds a DiscussionContext from turns already
// persisted for roomID (spec §8's round-trip property: a room recreated
// after a restart must resume with the same turn log and monotonic turn IDs,
// not start over at turn 1). turns must be in append order, exactly as
// RoomStore.LoadTurns returns them. The round counter, startedAt, and
// lastUserInputAt are recomputed by replaying the same bookkeeping Append
// performs per turn, so the reconstructed state is indistinguishable from a
// context that was never restarted. The phase always starts at PhaseIdle;
// nothing about a room's persisted turns implies it should resume Running.
func RestoreDiscussionContext(roomID, topic string, agents []AgentSpec, turns []Turn) *DiscussionContext {
	roster := make([]AgentSpec, len(agents))
	copy(roster, agents)

	d := &DiscussionContext{
		RoomID:     roomID,
		Topic:      topic,
		Agents:     roster,
		CreatedAt:  time.Now(),
		nextTurnID: 1,
		phase:      event.PhaseIdle,
	}
	if len(turns) == 0 {
		return d
	}

	d.turns = make([]Turn, len(turns))
	copy(d.turns, turns)

	round := 0
	var startedAt, lastUserInputAt time.Time
	for _, t := range d.turns {
		if t.AgentID == UserAgentID {
			round = 0
			lastUserInputAt = t.CreatedAt
			if startedAt.IsZero() {
				startedAt = t.CreatedAt
			}
		} else {
			round++
		}
	}
	d.round = round
	d.startedAt = startedAt
	d.lastUserInputAt = lastUserInputAt
	d.nextTurnID = d.turns[len(d.turns)-1].ID + 1
	return d
}

// Append adds a new turn to the log and returns it with its assigned ID. A
// user turn (speakerID == UserAgentID) resets the round counter to 0 and
// records the input timestamp; any other turn increments the round counter
// (spec §3's "round: count of agent turns since last user turn", and
// testable property 7).
func (d *DiscussionContext) Append(speakerID, content string, tokensUsed int) Turn {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if speakerID == UserAgentID {
		d.round = 0
		d.lastUserInputAt = now
		if d.startedAt.IsZero() {
			d.startedAt = now
		}
	} else {
		d.round++
	}

	turn := Turn{
		ID:         d.nextTurnID,
		RoundIndex: d.round,
		AgentID:    speakerID,
		Content:    content,
		TokensUsed: tokensUsed,
		CreatedAt:  now,
	}
	d.nextTurnID++
	d.turns = append(d.turns, turn)
	return turn
}

// Round returns the current round index.
func (d *DiscussionContext) Round() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.round
}

// Phase returns the current lifecycle phase.
func (d *DiscussionContext) Phase() event.Phase {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.phase
}

// SetPhase transitions to the given phase, rejecting any move not present in
// the legal phase graph (spec §3 invariant 4). Setting the phase to its
// current value is a no-op, not an error, since a Controller may re-publish
// a pause/resume command idempotently.
func (d *DiscussionContext) SetPhase(p event.Phase) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase == p {
		return nil
	}
	for _, allowed := range legalPhaseTransitions[d.phase] {
		if allowed == p {
			d.phase = p
			return nil
		}
	}
	return discerr.NewRoomError(
		"illegal phase transition",
		discerr.ErrRoomCorrupted,
	).WithRoomID(d.RoomID).WithSeverity(discerr.SeverityCritical)
}

// Snapshot returns a copy of the full turn log in append order.
func (d *DiscussionContext) Snapshot() []Turn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.turnsCopyLocked()
}

func (d *DiscussionContext) turnsCopyLocked() []Turn {
	out := make([]Turn, len(d.turns))
	copy(out, d.turns)
	return out
}

// TurnCount returns the number of turns appended so far.
func (d *DiscussionContext) TurnCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.turns)
}

// ContextView is a read-only, cheap-to-copy snapshot of a DiscussionContext
// (spec §4.2's Snapshot() -> ContextView), passed to SVRComputer and
// SVRDecider so neither ever touches the live, mutex-guarded state.
type ContextView struct {
	RoomID          string
	Topic           string
	Agents          []AgentSpec
	Turns           []Turn
	Round           int
	TotalTurns      int
	Phase           event.Phase
	StartedAt       time.Time
	LastUserInputAt time.Time
	TakenAt         time.Time
}

// Elapsed returns the time since the session started, relative to when the
// view was taken. Zero if the session has not yet started (no turns posted).
func (v ContextView) Elapsed() time.Duration {
	if v.StartedAt.IsZero() {
		return 0
	}
	return v.TakenAt.Sub(v.StartedAt)
}

// View takes a consistent ContextView of the context's current state.
func (d *DiscussionContext) View() ContextView {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agents := make([]AgentSpec, len(d.Agents))
	copy(agents, d.Agents)

	return ContextView{
		RoomID:          d.RoomID,
		Topic:           d.Topic,
		Agents:          agents,
		Turns:           d.turnsCopyLocked(),
		Round:           d.round,
		TotalTurns:      len(d.turns),
		Phase:           d.phase,
		StartedAt:       d.startedAt,
		LastUserInputAt: d.lastUserInputAt,
		TakenAt:         time.Now(),
	}
}

// RecentWindow returns the most recent turns, bounded by both a turn count
// and a token budget (spec §4.3's history window). Turns are walked from the
// newest backwards; the returned slice stays in chronological order.
func (d *DiscussionContext) RecentWindow(maxTurns, maxTokens int) []Turn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if maxTurns <= 0 || len(d.turns) == 0 {
		return nil
	}

	start := len(d.turns) - maxTurns
	if start < 0 {
		start = 0
	}

	if maxTokens <= 0 {
		out := make([]Turn, len(d.turns)-start)
		copy(out, d.turns[start:])
		return out
	}

	tokenBudget := 0
	cut := len(d.turns)
	for i := len(d.turns) - 1; i >= start; i-- {
		tokenBudget += d.turns[i].TokensUsed
		if tokenBudget > maxTokens && cut != len(d.turns) {
			break
		}
		cut = i
	}

	out := make([]Turn, len(d.turns)-cut)
	copy(out, d.turns[cut:])
	return out
}

// ParticipationStats returns, for each agent in the roster, the fraction of
// the last `window` turns it produced (spec §4.2). Agents with zero turns in
// the window are included with a fraction of 0, so callers can detect silent
// participants. Surfaced over the status endpoint as the per-agent
// participation ratio spec §3 lists among DiscussionContext's derived state.
func (d *DiscussionContext) ParticipationStats(window int) map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := make(map[string]float64, len(d.Agents))
	for _, a := range d.Agents {
		stats[a.ID] = 0
	}

	start := len(d.turns) - window
	if window <= 0 || start < 0 {
		start = 0
	}
	slice := d.turns[start:]
	if len(slice) == 0 {
		return stats
	}

	counts := make(map[string]int, len(d.Agents))
	for _, t := range slice {
		counts[t.AgentID]++
	}
	for id, n := range counts {
		stats[id] = float64(n) / float64(len(slice))
	}
	return stats
}
