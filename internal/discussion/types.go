// Package discussion holds the append-only turn log and roster for a single
// discussion room: the data model that every other component in the engine
// reads from and appends to.
package discussion

import "time"

// UserAgentID is the sentinel speaker ID for a Turn posted by the human user
// rather than an agent (spec §3's Turn.speakerID "agent or user").
const UserAgentID = "user"

// AgentSpec describes one participant in a discussion room. It is immutable
// once a room starts; substitution (spec §4.6) replaces one AgentSpec with
// another rather than mutating it in place.
type AgentSpec struct {
	ID          string // stable identifier, unique within the room
	DisplayName string
	Role        string
	Persona     string // system-prompt fragment describing the agent's stance/role
	Backend     string // agentbackend.Name recorded for this agent; stored and reported, but Think calls go to the Controller's single backend
}

// Turn is one immutable utterance by the user or an agent. Turn IDs are a
// per-room monotonic counter starting at 1 (invariant: IDs never repeat or
// go backwards within a room, and the turn log is append-only).
type Turn struct {
	ID         int64
	RoundIndex int
	AgentID    string // UserAgentID for a user-posted turn
	Content    string
	TokensUsed int
	CreatedAt  time.Time
}

// IsUser reports whether this turn was posted by the human user rather than
// an agent.
func (t Turn) IsUser() bool {
	return t.AgentID == UserAgentID
}
