// Package controller implements the ContinuousController (spec §4.6): the
// per-room state machine that drives the turn loop by wiring together a
// room's DiscussionContext, ParallelSVREngine, SVRDecider, and AgentBackend.
//
// It is grounded on the teacher's internal/coordination/hub.go for its
// component-wiring and Start/Stop lifecycle, and on internal/bridge/bridge.go
// for its claim-loop/monitor-goroutine idiom, generalized here from "poll a
// Claude Code instance to completion" to "drive one room's tick loop until
// it reaches Stopped".
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/discussiond/engine/internal/agentbackend"
	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/decision"
	"github.com/discussiond/engine/internal/discussion"
	discerr "github.com/discussiond/engine/internal/errors"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/logging"
	"github.com/discussiond/engine/internal/svr"
	"github.com/discussiond/engine/internal/svrengine"
)

// Persister durably records turns off the tick loop's critical path. Enqueue
// must not block beyond a bounded attempt; a Controller treats persistence as
// best-effort and only surfaces backlog depth via PersistenceDegradedEvent.
type Persister interface {
	Enqueue(ctx context.Context, roomID string, turn discussion.Turn) error
	BacklogDepth(roomID string) int
}

// Command is the closed set of operator commands a Controller accepts
// (spec §4.7's Control operation).
type Command int

const (
	CmdPause Command = iota
	CmdResume
	CmdStop
)

// Controller drives one room's turn loop. A Controller owns exactly one
// DiscussionContext and runs as one logical single-writer task (spec §5):
// only one of {computing SVR, deciding, appending, emitting, awaiting Think}
// is ever in flight for a given room.
type Controller struct {
	roomID  string
	dctx    *discussion.DiscussionContext
	engine  *svrengine.Engine
	decider *decision.Decider
	backend agentbackend.Backend

	persister Persister
	bus       *event.Bus
	logger    *logging.Logger
	cfg       config.EngineConfig

	degradedMu sync.Mutex
	degraded   map[string]int // agentID -> permanent-failure count

	cmds chan Command

	runMu   sync.Mutex
	started bool
	wg      sync.WaitGroup

	thinkMu     sync.Mutex
	thinkCancel context.CancelFunc
}

// New builds a Controller for one room. backend is the AgentBackend every
// participant is routed through; a real deployment may wrap a per-agent
// router, but the Controller itself only needs the single opaque Think
// capability (spec §4.1).
func New(
	roomID string,
	dctx *discussion.DiscussionContext,
	engine *svrengine.Engine,
	decider *decision.Decider,
	backend agentbackend.Backend,
	persister Persister,
	bus *event.Bus,
	logger *logging.Logger,
	cfg config.EngineConfig,
) *Controller {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Controller{
		roomID:    roomID,
		dctx:      dctx,
		engine:    engine,
		decider:   decider,
		backend:   backend,
		persister: persister,
		bus:       bus,
		logger:    logger.WithRoom(roomID),
		cfg:       cfg,
		degraded:  make(map[string]int),
		cmds:      make(chan Command, 4),
	}
}

// Start transitions the room to Running and begins the tick loop in a
// background goroutine. It returns immediately; call Stop (or send CmdStop)
// to shut down. Returns an error if already started.
func (c *Controller) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.started {
		return fmt.Errorf("controller: room %s already started", c.roomID)
	}

	if err := c.dctx.SetPhase(event.PhaseRunning); err != nil {
		return err
	}
	c.bus.Publish(event.NewPhaseChangeEvent(c.roomID, event.PhaseIdle, event.PhaseRunning))
	c.bus.Publish(event.NewRoomStartedEvent(c.roomID, c.dctx.Topic))

	runCtx, cancel := context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.loop(runCtx)
	}()

	return nil
}

// Stop requests the room stop and waits for the tick loop to reach Stopped
// or for ctx to expire, whichever comes first (spec's shutdownGrace).
func (c *Controller) Stop(ctx context.Context) error {
	c.Control(CmdStop)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Control enqueues an operator command. Sends never block: a full command
// queue means a command is already pending, and the new one is dropped
// rather than stalling the caller.
func (c *Controller) Control(cmd Command) {
	select {
	case c.cmds <- cmd:
	default:
	}
}

// Phase returns the room's current lifecycle phase.
func (c *Controller) Phase() event.Phase {
	return c.dctx.Phase()
}

// PostUserInput appends a user turn, resets the round counter, and emits the
// corresponding turn.appended event. If the room is Paused (e.g. after a
// RedirectToUser decision), it also resumes the tick loop.
func (c *Controller) PostUserInput(content string) {
	turn := c.dctx.Append(discussion.UserAgentID, content, 0)
	c.bus.Publish(event.NewTurnAppendedEvent(c.roomID, turn.ID, turn.AgentID, turn.Content, turn.TokensUsed, len([]rune(turn.Content))))
	if c.dctx.Phase() == event.PhasePaused {
		c.Control(CmdResume)
	}
}

func (c *Controller) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stopNow("context canceled")
			return
		case cmd := <-c.cmds:
			if c.applyCommand(cmd) {
				return
			}
		default:
		}

		switch c.dctx.Phase() {
		case event.PhaseRunning:
			c.tick(ctx)
		case event.PhasePaused:
			select {
			case <-ctx.Done():
				c.stopNow("context canceled")
				return
			case cmd := <-c.cmds:
				if c.applyCommand(cmd) {
					return
				}
			}
		case event.PhaseStopping:
			c.finishStopping("stopping")
			return
		case event.PhaseStopped:
			return
		}
	}
}

// applyCommand handles one operator command, returning true if the loop
// should exit (the room reached Stopped).
func (c *Controller) applyCommand(cmd Command) bool {
	switch cmd {
	case CmdPause:
		if c.dctx.Phase() == event.PhaseRunning {
			c.transitionTo(event.PhasePaused)
		}
	case CmdResume:
		if c.dctx.Phase() == event.PhasePaused {
			c.transitionTo(event.PhaseRunning)
		}
	case CmdStop:
		c.cancelInFlightThink()
		if c.dctx.Phase() != event.PhaseStopped {
			c.transitionTo(event.PhaseStopping)
			c.finishStopping("operator_stop")
		}
		return true
	}
	return false
}

func (c *Controller) stopNow(reason string) {
	c.logger.Info("stopping controller", "reason", reason)
	c.cancelInFlightThink()
	if c.dctx.Phase() != event.PhaseStopped {
		_ = c.dctx.SetPhase(event.PhaseStopping)
		c.finishStopping(reason)
	}
}

func (c *Controller) finishStopping(reason string) {
	prev := c.dctx.Phase()
	if err := c.dctx.SetPhase(event.PhaseStopped); err != nil {
		c.logger.Error("failed to transition to stopped", "error", err)
		return
	}
	c.bus.Publish(event.NewPhaseChangeEvent(c.roomID, prev, event.PhaseStopped))
	c.bus.Publish(event.NewRoomStoppedEvent(c.roomID, reason))
}

func (c *Controller) transitionTo(phase event.Phase) {
	prev := c.dctx.Phase()
	if err := c.dctx.SetPhase(phase); err != nil {
		c.logger.Error("illegal phase transition", "from", prev, "to", phase, "error", err)
		return
	}
	c.bus.Publish(event.NewPhaseChangeEvent(c.roomID, prev, phase))
}

func (c *Controller) cancelInFlightThink() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinkCancel != nil {
		c.thinkCancel()
	}
}

// tick runs one pass of SVR -> Decide -> Think -> Append -> Emit (spec
// §4.6). Event emission order within a tick is fixed: svr_computed ->
// decision_made -> turn_started -> (turn_completed | turn_failed).
func (c *Controller) tick(ctx context.Context) {
	view := c.dctx.View()

	svrCtx, svrCancel := context.WithTimeout(ctx, c.cfg.SVRDeadline())
	scores := c.engine.Compute(svrCtx, view)
	svrCancel()

	timedOutOnly := true
	wireScores := make([]event.AgentScore, 0, len(scores))
	for _, t := range scores {
		errMsg := ""
		if t.Err == nil {
			timedOutOnly = false
		} else {
			errMsg = t.Err.Error()
		}
		wireScores = append(wireScores, event.AgentScore{
			AgentID: t.AgentID, Stop: t.Stop, Value: t.Value, Repeat: t.Repeat, Err: errMsg,
		})
	}
	c.bus.Publish(event.NewSVRComputedEvent(c.roomID, view.Round, wireScores, timedOutOnly))

	degraded := c.degradedSnapshot()
	dec := c.decider.Decide(scores, view, degraded)
	c.bus.Publish(event.NewDecisionMadeEvent(c.roomID, view.Round, dec.Action, dec.SelectedAgentID, string(dec.Reason)))

	switch dec.Action {
	case event.DecisionContinue:
		c.runThink(ctx, dec, scores, view, degraded)
	case event.DecisionStop:
		c.transitionTo(event.PhaseStopping)
		c.finishStopping(string(dec.Reason))
	case event.DecisionPause, event.DecisionRedirectToUser:
		c.transitionTo(event.PhasePaused)
	}
}

// runThink calls Think for the selected agent, substituting up to
// MaxSubstitutionsPerRound times on Timeout/Transient/Permanent failures
// before giving up for this tick (spec §4.6, §7).
func (c *Controller) runThink(ctx context.Context, dec decision.Decision, scores []svr.Tuple, view discussion.ContextView, degraded map[string]bool) {
	order := rankedFallbackOrder(dec.SelectedAgentID, scores, degraded)

	substitutions := 0
	triedTransient := make(map[string]bool)

	for i, agentID := range order {
		agent, ok := findAgent(view.Agents, agentID)
		if !ok {
			continue
		}

		c.bus.Publish(event.NewTurnStartedEvent(c.roomID, agentID, view.Round))

		result, err := c.think(ctx, agent)
		if err == nil {
			turn := c.dctx.Append(agentID, result.Content, result.TokensUsed)
			c.bus.Publish(event.NewTurnAppendedEvent(c.roomID, turn.ID, turn.AgentID, turn.Content, turn.TokensUsed, len([]rune(turn.Content))))
			c.recordRealizedValue(agentID, scores)
			c.persistTurn(ctx, turn)
			if i > 0 {
				c.bus.Publish(event.NewAgentSubstitutedEvent(c.roomID, dec.SelectedAgentID, agentID, substitutions))
			}
			return
		}

		kind, classified := classifyAgentError(err)
		if !classified {
			c.bus.Publish(event.NewTurnFailedEvent(c.roomID, agentID, err.Error()))
			return
		}

		switch kind {
		case discerr.AgentKindTransient:
			if !triedTransient[agentID] {
				triedTransient[agentID] = true
				result, err := c.think(ctx, agent)
				if err == nil {
					turn := c.dctx.Append(agentID, result.Content, result.TokensUsed)
					c.bus.Publish(event.NewTurnAppendedEvent(c.roomID, turn.ID, turn.AgentID, turn.Content, turn.TokensUsed, len([]rune(turn.Content))))
					c.recordRealizedValue(agentID, scores)
					c.persistTurn(ctx, turn)
					return
				}
			}
			substitutions++
		case discerr.AgentKindTimeout:
			substitutions++
		case discerr.AgentKindPermanent, discerr.AgentKindPolicyBlocked:
			c.markDegraded(agentID)
			c.bus.Publish(event.NewTurnFailedEvent(c.roomID, agentID, err.Error()))
			substitutions++
		default:
			substitutions++
		}

		if substitutions > c.cfg.MaxSubstitutionsPerRound {
			c.bus.Publish(event.NewTurnFailedEvent(c.roomID, agentID, "substitution budget exhausted"))
			return
		}
	}

	c.transitionTo(event.PhasePaused)
}

func (c *Controller) think(ctx context.Context, agent discussion.AgentSpec) (agentbackend.ThinkResult, error) {
	thinkCtx, cancel := context.WithTimeout(ctx, c.cfg.ThinkTimeout())
	c.thinkMu.Lock()
	c.thinkCancel = cancel
	c.thinkMu.Unlock()
	defer func() {
		c.thinkMu.Lock()
		c.thinkCancel = nil
		c.thinkMu.Unlock()
		cancel()
	}()

	history := c.dctx.RecentWindow(c.cfg.HistoryWindowTurns, c.cfg.HistoryWindowTokens)
	return c.backend.Think(thinkCtx, agent.Persona, history, agentbackend.ThinkParams{})
}

// persistTurn fires the per-tick bounded persist step. The event itself was
// already published directly on the bus by the caller (the Controller's only
// delivery mechanism; see internal/clienthub.Hub's SubscribeAll); this only
// durably records the turn, bounded by publishTimeout so a slow/failing
// persist never blocks the tick loop beyond that bound (spec §5's
// suspension-point rules).
func (c *Controller) persistTurn(ctx context.Context, turn discussion.Turn) {
	if c.persister == nil {
		return
	}

	boundedCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout())
	defer cancel()

	if err := c.persister.Enqueue(boundedCtx, c.roomID, turn); err != nil {
		c.logger.Warn("persist step did not complete within budget", "error", err)
	}

	if depth := c.persister.BacklogDepth(c.roomID); depth > c.cfg.PersistLagCap {
		c.bus.Publish(event.NewPersistenceDegradedEvent(c.roomID, depth, c.cfg.PersistLagCap))
	}
}

// recordRealizedValue feeds the value score this tick computed for agentID
// back into the engine's history-performance EWMA (spec §4.3's 0.25-weighted
// "history performance" sub-signal), so it contributes to later ticks'
// selection instead of staying permanently at 0.
func (c *Controller) recordRealizedValue(agentID string, scores []svr.Tuple) {
	for _, t := range scores {
		if t.AgentID == agentID && t.Err == nil {
			c.engine.RecordRealizedValue(agentID, t.Value)
			return
		}
	}
}

func (c *Controller) markDegraded(agentID string) {
	c.degradedMu.Lock()
	c.degraded[agentID]++
	count := c.degraded[agentID]
	c.degradedMu.Unlock()

	if count >= c.cfg.MaxPermanentFailures {
		c.bus.Publish(event.NewAgentDegradedEvent(c.roomID, agentID, count, "max permanent failures reached"))
	}
}

func (c *Controller) degradedSnapshot() map[string]bool {
	c.degradedMu.Lock()
	defer c.degradedMu.Unlock()

	out := make(map[string]bool)
	for id, count := range c.degraded {
		if count >= c.cfg.MaxPermanentFailures {
			out[id] = true
		}
	}
	return out
}

func findAgent(agents []discussion.AgentSpec, id string) (discussion.AgentSpec, bool) {
	for _, a := range agents {
		if a.ID == id {
			return a, true
		}
	}
	return discussion.AgentSpec{}, false
}

// rankedFallbackOrder returns the candidate agent IDs to try for this tick's
// Think call, starting with the Decider's pick and falling back to the
// next-highest scoring eligible participant on failure.
func rankedFallbackOrder(selected string, scores []svr.Tuple, degraded map[string]bool) []string {
	type scored struct {
		id    string
		value float64
	}
	var candidates []scored
	for _, t := range scores {
		if t.Err != nil || degraded[t.AgentID] {
			continue
		}
		candidates = append(candidates, scored{id: t.AgentID, value: t.Value * (1 - t.Repeat) * (1 - 0.5*t.Stop)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].value > candidates[j].value
	})

	order := make([]string, 0, len(candidates)+1)
	order = append(order, selected)
	for _, s := range candidates {
		if s.id != selected {
			order = append(order, s.id)
		}
	}
	return order
}

func classifyAgentError(err error) (discerr.AgentKind, bool) {
	var agentErr *discerr.AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Kind, true
	}
	return 0, false
}
