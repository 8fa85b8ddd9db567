package svr

import (
	"sync"
	"time"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/discussion"
)

const historyEWMAAlpha = 0.3

// Computer produces one Tuple per agent per round (spec §4.3). It is CPU-only
// and never performs I/O; the only state it carries across calls is each
// agent's running EWMA of realized "value" scores, fed back in by the
// Controller via RecordRealizedValue after a turn lands.
type Computer struct {
	cfg                 config.SVRConfig
	maxDuration         time.Duration
	participationWindow int

	mu        sync.Mutex
	valueEWMA map[string]float64
}

// NewComputer builds a Computer from the engine's configured weights and
// thresholds. participationWindow is W in spec §4.3's stop.fatigue dimension
// (EngineConfig.ParticipationWindow); a value <= 0 falls back to the entire
// turn log, matching fatigue's pre-window behavior for an empty room.
func NewComputer(cfg config.SVRConfig, maxDuration time.Duration, participationWindow int) *Computer {
	return &Computer{
		cfg:                 cfg,
		maxDuration:         maxDuration,
		participationWindow: participationWindow,
		valueEWMA:           make(map[string]float64),
	}
}

// RecordRealizedValue folds a newly observed value score into the agent's
// history-performance EWMA. Called once per turn, after Append.
func (c *Computer) RecordRealizedValue(agentID string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.valueEWMA[agentID]
	if !ok {
		c.valueEWMA[agentID] = value
		return
	}
	c.valueEWMA[agentID] = historyEWMAAlpha*value + (1-historyEWMAAlpha)*prev
}

func (c *Computer) historyPerformance(agentID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valueEWMA[agentID]
}

// Compute produces agent's SVR tuple given the room's current view. It never
// returns an error itself — ParallelSVREngine is the layer that turns a
// timed-out computation into an errored Tuple.
func (c *Computer) Compute(agent discussion.AgentSpec, view discussion.ContextView) Tuple {
	return Tuple{
		AgentID: agent.ID,
		Stop:    clamp01(c.stop(agent, view)),
		Value:   clamp01(c.value(agent, view)),
		Repeat:  clamp01(c.repeat(agent, view)),
	}
}

func lastTurnsBy(turns []discussion.Turn, agentID string, n int) []discussion.Turn {
	var out []discussion.Turn
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if turns[i].AgentID == agentID {
			out = append([]discussion.Turn{turns[i]}, out...)
		}
	}
	return out
}

func lastTurnBy(turns []discussion.Turn, agentID string) (discussion.Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].AgentID == agentID {
			return turns[i], true
		}
	}
	return discussion.Turn{}, false
}

func (c *Computer) stop(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	w := c.cfg.StopWeights

	consensus := c.consensusContribution(agent, view)
	saturation := c.saturation(view)
	fatigue := c.fatigue(agent, view)
	global := c.globalStopSignal(view)
	timeFactor := c.timeFactor(view)

	return w.ConsensusContribution*consensus +
		w.Saturation*saturation +
		w.Fatigue*fatigue +
		w.GlobalStopSignal*global +
		w.TimeFactor*timeFactor
}

func (c *Computer) consensusContribution(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	mine, ok := lastTurnBy(view.Turns, agent.ID)
	if !ok {
		return 0
	}
	myDigest := newDigest(mine.Content)

	var total float64
	var n int
	for _, other := range view.Agents {
		if other.ID == agent.ID {
			continue
		}
		otherTurn, ok := lastTurnBy(view.Turns, other.ID)
		if !ok {
			continue
		}
		total += jaccard(myDigest, newDigest(otherTurn.Content))
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (c *Computer) saturation(view discussion.ContextView) float64 {
	softCap := c.softCap(len(view.Agents))
	if softCap <= 0 {
		return 1
	}
	return minF(1, float64(view.Round)/float64(softCap))
}

func (c *Computer) softCap(participants int) int {
	scaled := c.cfg.SoftCapPerParticipant * participants
	if c.cfg.SoftCapMinRounds > scaled {
		return c.cfg.SoftCapMinRounds
	}
	return scaled
}

func (c *Computer) fatigue(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	window := c.participationWindow
	if window <= 0 {
		window = len(view.Turns)
	}
	if window == 0 {
		return 0
	}
	share := participationShare(view.Turns, agent.ID, window)
	peak := c.cfg.FatiguePeakShare
	if peak <= 0 {
		return 1
	}
	return minF(1, share/peak)
}

func participationShare(turns []discussion.Turn, agentID string, window int) float64 {
	start := len(turns) - window
	if start < 0 {
		start = 0
	}
	slice := turns[start:]
	if len(slice) == 0 {
		return 0
	}
	var count int
	for _, t := range slice {
		if t.AgentID == agentID {
			count++
		}
	}
	return float64(count) / float64(len(slice))
}

func (c *Computer) globalStopSignal(view discussion.ContextView) float64 {
	counts := make(map[string]int)
	for _, t := range view.Turns {
		if t.IsUser() {
			continue
		}
		counts[t.AgentID]++
	}
	return 1 - normalizedEntropy(counts)
}

func (c *Computer) timeFactor(view discussion.ContextView) float64 {
	if c.maxDuration <= 0 {
		return 0
	}
	return minF(1, view.Elapsed().Seconds()/c.maxDuration.Seconds())
}

func (c *Computer) value(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	w := c.cfg.ValueWeights

	quality := c.turnQuality(agent, view)
	history := c.historyPerformance(agent.ID)
	interaction := c.interactionPotential(agent, view)
	relevance := c.topicalRelevance(agent, view)

	return w.TurnQuality*quality +
		w.HistoryPerformance*history +
		w.InteractionPotential*interaction +
		w.TopicalRelevance*relevance
}

func (c *Computer) turnQuality(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	recent := lastTurnsBy(view.Turns, agent.ID, 3)
	if len(recent) == 0 {
		return 1
	}

	var prior digest
	var total float64
	for i, t := range recent {
		total += c.lengthScore(len(t.Content)) * c.noveltyScore(t, prior)
		if i == 0 {
			prior = newDigest(t.Content)
		} else {
			prior = unionDigests(prior, newDigest(t.Content))
		}
	}
	return total / float64(len(recent))
}

func (c *Computer) lengthScore(n int) float64 {
	floor, ceil := c.cfg.QualityLenFloor, c.cfg.QualityLenCeil
	switch {
	case n >= floor && n <= ceil:
		return 1
	case n < floor:
		if floor == 0 {
			return 1
		}
		return clamp01(float64(n) / float64(floor))
	default:
		over := n - ceil
		return clamp01(1 - float64(over)/float64(ceil+1))
	}
}

func (c *Computer) noveltyScore(t discussion.Turn, prior digest) float64 {
	if len(prior) == 0 {
		return 1
	}
	return 1 - jaccard(newDigest(t.Content), prior)
}

func (c *Computer) interactionPotential(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	n := len(view.Agents)
	if n == 0 {
		return 1
	}
	since := turnsSinceLastSpoke(view.Turns, agent.ID)
	if since >= n {
		return 1
	}
	return float64(since) / float64(n)
}

func turnsSinceLastSpoke(turns []discussion.Turn, agentID string) int {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].AgentID == agentID {
			return len(turns) - 1 - i
		}
	}
	return len(turns)
}

func (c *Computer) topicalRelevance(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	var lastUser discussion.Turn
	found := false
	for i := len(view.Turns) - 1; i >= 0; i-- {
		if view.Turns[i].IsUser() {
			lastUser = view.Turns[i]
			found = true
			break
		}
	}
	if !found {
		return 0
	}
	roleDigest := newDigest(agent.Persona + " " + agent.Role)
	return jaccard(roleDigest, newDigest(lastUser.Content))
}

func (c *Computer) repeat(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	w := c.cfg.RepeatWeights

	selfSim := c.selfSimilarity(agent, view)
	pattern := c.patternRepetition(agent, view)
	recycling := c.argumentRecycling(agent, view)
	freq := c.frequencyRisk(agent, view)

	return w.SelfSimilarity*selfSim +
		w.PatternRepetition*pattern +
		w.ArgumentRecycling*recycling +
		w.FrequencyRisk*freq
}

func (c *Computer) selfSimilarity(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	mine := lastTurnsBy(view.Turns, agent.ID, 1000)
	if len(mine) < 2 {
		return 0
	}
	last := mine[len(mine)-1]
	prior := unionDigests(digestsOf(mine[:len(mine)-1])...)
	return jaccard(newDigest(last.Content), prior)
}

func digestsOf(turns []discussion.Turn) []digest {
	out := make([]digest, len(turns))
	for i, t := range turns {
		out[i] = newDigest(t.Content)
	}
	return out
}

func (c *Computer) patternRepetition(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	mine := lastTurnsBy(view.Turns, agent.ID, 2)
	if len(mine) < 2 {
		return 0
	}
	n := c.cfg.NGramSize
	return jaccard(ngramSet(mine[0].Content, n), ngramSet(mine[1].Content, n))
}

func (c *Computer) argumentRecycling(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	mine := lastTurnsBy(view.Turns, agent.ID, 1)
	if len(mine) == 0 {
		return 0
	}
	mineDigest := newDigest(mine[0].Content)

	var best float64
	for _, t := range view.Turns {
		if t.ID == mine[0].ID {
			continue
		}
		if sim := jaccard(mineDigest, newDigest(t.Content)); sim > best {
			best = sim
		}
	}
	return best
}

func (c *Computer) frequencyRisk(agent discussion.AgentSpec, view discussion.ContextView) float64 {
	if view.TotalTurns == 0 {
		return 0
	}
	var count int
	for _, t := range view.Turns {
		if t.AgentID == agent.ID {
			count++
		}
	}
	return float64(count) / float64(view.TotalTurns)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
