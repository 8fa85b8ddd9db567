// Package decision implements SVRDecider (spec §4.5): the pure function that
// maps one round's SVR tuples and room context onto exactly one Decision.
package decision

import (
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/svr"
)

// Reason is a stable, wire-safe string explaining why a Decision was made
// (spec §3's Decision.reason). Kept as a closed set of constants rather than
// free-form text so ClientHub and callers can switch on it.
type Reason string

const (
	ReasonBudget          Reason = "budget"
	ReasonConsensus       Reason = "consensus"
	ReasonLowValue        Reason = "low-value"
	ReasonTopScore        Reason = "top-score"
	ReasonAllAgentsFailed Reason = "all-agents-failed"
)

// Decision is the Decider's single output for one round (spec §3).
type Decision struct {
	Action          event.Decision
	SelectedAgentID string
	Reason          Reason
	Scores          []svr.Tuple
}
