package decision

import (
	"sort"
	"time"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/discussion"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/svr"
)

// Decider maps a round's SVR tuples and context view onto a Decision. It is a
// pure function of its inputs (spec testable property 6): same scores and
// view always produce the same Decision.
type Decider struct {
	stopThreshold       float64
	qualityFloor        float64
	minRoundsBeforeStop int
	participationWindow int
	maxTurns            int
	maxDuration         time.Duration
}

// NewDecider builds a Decider from the engine's configured thresholds.
func NewDecider(svrCfg config.SVRConfig, engineCfg config.EngineConfig) *Decider {
	return &Decider{
		stopThreshold:       svrCfg.StopThreshold,
		qualityFloor:        svrCfg.QualityFloor,
		minRoundsBeforeStop: engineCfg.MinRoundsBeforeStop,
		participationWindow: engineCfg.ParticipationWindow,
		maxTurns:            engineCfg.MaxTurns,
		maxDuration:         engineCfg.MaxDuration(),
	}
}

// Decide applies spec §4.5's first-match rule chain. degraded agent IDs are
// treated as ineligible for selection (still scored, never chosen).
func (d *Decider) Decide(scores []svr.Tuple, view discussion.ContextView, degraded map[string]bool) Decision {
	if d.budgetExceeded(view) {
		return Decision{Action: event.DecisionStop, Reason: ReasonBudget, Scores: scores}
	}

	valid := validTuples(scores, degraded)

	if len(valid) == 0 {
		return Decision{Action: event.DecisionPause, Reason: ReasonAllAgentsFailed, Scores: scores}
	}

	if d.consensusStop(valid, view) {
		return Decision{Action: event.DecisionStop, Reason: ReasonConsensus, Scores: scores}
	}

	if d.qualityFloorBreached(valid, view) {
		return Decision{Action: event.DecisionRedirectToUser, Reason: ReasonLowValue, Scores: scores}
	}

	selected := d.selectTopScore(valid, view)
	return Decision{
		Action:          event.DecisionContinue,
		SelectedAgentID: selected.AgentID,
		Reason:          ReasonTopScore,
		Scores:          scores,
	}
}

// budgetExceeded implements rule 1's hard stop. maxTurns counts agent turns
// only (a fresh room with maxTurns=0 must stop before its first agent turn,
// per spec §8's boundary case; the user's opening turn does not itself
// consume the budget).
func (d *Decider) budgetExceeded(view discussion.ContextView) bool {
	if agentTurnCount(view.Turns) >= d.maxTurns {
		return true
	}
	if d.maxDuration > 0 && view.Elapsed() >= d.maxDuration {
		return true
	}
	return false
}

func agentTurnCount(turns []discussion.Turn) int {
	var n int
	for _, t := range turns {
		if !t.IsUser() {
			n++
		}
	}
	return n
}

func validTuples(scores []svr.Tuple, degraded map[string]bool) []svr.Tuple {
	var out []svr.Tuple
	for _, t := range scores {
		if !t.Valid() {
			continue
		}
		if degraded != nil && degraded[t.AgentID] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (d *Decider) consensusStop(valid []svr.Tuple, view discussion.ContextView) bool {
	if view.Round < d.minRoundsBeforeStop {
		return false
	}
	var sum float64
	for _, t := range valid {
		sum += t.Stop
	}
	mean := sum / float64(len(valid))
	return mean >= d.stopThreshold
}

func (d *Decider) qualityFloorBreached(valid []svr.Tuple, view discussion.ContextView) bool {
	if view.Round < d.minRoundsBeforeStop {
		return false
	}
	maxValue := valid[0].Value
	for _, t := range valid[1:] {
		if t.Value > maxValue {
			maxValue = t.Value
		}
	}
	return maxValue < d.qualityFloor
}

// selectTopScore picks the participant maximizing value*(1-repeat)*(1-0.5*stop),
// breaking ties by lowest recent participation then lexicographically lowest
// agentID (spec §4.5 rule 4).
func (d *Decider) selectTopScore(valid []svr.Tuple, view discussion.ContextView) svr.Tuple {
	participation := participationCounts(view.Turns, d.participationWindow)

	candidates := make([]svr.Tuple, len(valid))
	copy(candidates, valid)

	sort.SliceStable(candidates, func(i, j int) bool {
		si := compositeScore(candidates[i])
		sj := compositeScore(candidates[j])
		if si != sj {
			return si > sj
		}
		pi := participation[candidates[i].AgentID]
		pj := participation[candidates[j].AgentID]
		if pi != pj {
			return pi < pj
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})

	return candidates[0]
}

func compositeScore(t svr.Tuple) float64 {
	return t.Value * (1 - t.Repeat) * (1 - 0.5*t.Stop)
}

func participationCounts(turns []discussion.Turn, window int) map[string]int {
	counts := make(map[string]int)
	start := len(turns) - window
	if window <= 0 || start < 0 {
		start = 0
	}
	for _, t := range turns[start:] {
		counts[t.AgentID]++
	}
	return counts
}
