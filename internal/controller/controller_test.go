package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/discussiond/engine/internal/agentbackend"
	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/decision"
	"github.com/discussiond/engine/internal/discussion"
	discerr "github.com/discussiond/engine/internal/errors"
	"github.com/discussiond/engine/internal/event"
	"github.com/discussiond/engine/internal/svr"
	"github.com/discussiond/engine/internal/svrengine"
)

// fakeBackend is a hand-written Backend fake (no mocking framework) whose
// Think behavior is scripted per call, per agent.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	// script[agentID] is consulted by call index; a missing entry means "succeed".
	script map[string][]error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int), script: make(map[string][]error)}
}

func (f *fakeBackend) Name() agentbackend.Name { return "fake" }
func (f *fakeBackend) DisplayName() string     { return "fake" }

func (f *fakeBackend) Think(ctx context.Context, systemPrompt string, history []discussion.Turn, params agentbackend.ThinkParams) (agentbackend.ThinkResult, error) {
	f.mu.Lock()
	idx := f.calls[systemPrompt]
	f.calls[systemPrompt] = idx + 1
	var scripted []error
	if s, ok := f.script[systemPrompt]; ok {
		scripted = s
	}
	f.mu.Unlock()

	if idx < len(scripted) && scripted[idx] != nil {
		return agentbackend.ThinkResult{}, scripted[idx]
	}
	return agentbackend.ThinkResult{Content: "a response", TokensUsed: 5}, nil
}

type fakePersister struct {
	mu      sync.Mutex
	entries []discussion.Turn
}

func (p *fakePersister) Enqueue(ctx context.Context, roomID string, turn discussion.Turn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, turn)
	return nil
}

func (p *fakePersister) BacklogDepth(roomID string) int { return 0 }

func testController(t *testing.T, roster []discussion.AgentSpec, backend agentbackend.Backend, maxTurns int) (*Controller, *discussion.DiscussionContext, *event.Bus) {
	t.Helper()

	cfg := config.Default()
	cfg.Engine.MaxTurns = maxTurns
	cfg.Engine.ThinkTimeoutMs = 200
	cfg.Engine.SVRDeadlineMs = 200
	cfg.Engine.PublishTimeoutMs = 200
	cfg.Engine.MinRoundsBeforeStop = 100 // keep consensus/quality rules out of the way by default

	dctx := discussion.NewDiscussionContext("room-1", "ship it?", roster)
	dctx.Append(discussion.UserAgentID, "should we ship it?", 0)

	computer := svr.NewComputer(cfg.SVR, cfg.Engine.MaxDuration(), cfg.Engine.ParticipationWindow)
	engine := svrengine.NewEngine(computer, cfg.Engine.SVRDeadline())
	decider := decision.NewDecider(cfg.SVR, cfg.Engine)
	bus := event.NewBus()

	ctrl := New(
		"room-1", dctx, engine, decider, backend,
		&fakePersister{}, bus, nil, cfg.Engine,
	)
	return ctrl, dctx, bus
}

func waitForPhase(t *testing.T, dctx *discussion.DiscussionContext, want event.Phase, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if dctx.Phase() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("phase never reached %s, stuck at %s", want, dctx.Phase())
}

func TestController_RunsUntilBudgetStop(t *testing.T) {
	roster := []discussion.AgentSpec{{ID: "alpha", Persona: "alpha"}}
	backend := newFakeBackend()
	ctrl, dctx, _ := testController(t, roster, backend, 3)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForPhase(t, dctx, event.PhaseStopped, 2*time.Second)

	turns := dctx.Snapshot()
	agentTurns := 0
	for _, tr := range turns {
		if !tr.IsUser() {
			agentTurns++
		}
	}
	if agentTurns != 3 {
		t.Errorf("expected 3 agent turns before budget stop, got %d", agentTurns)
	}
}

func TestController_PauseAndResume(t *testing.T) {
	roster := []discussion.AgentSpec{{ID: "alpha", Persona: "alpha"}}
	backend := newFakeBackend()
	ctrl, dctx, _ := testController(t, roster, backend, 50)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForPhase(t, dctx, event.PhaseRunning, time.Second)
	ctrl.Control(CmdPause)
	waitForPhase(t, dctx, event.PhasePaused, time.Second)

	before := dctx.TurnCount()
	time.Sleep(30 * time.Millisecond)
	if dctx.TurnCount() != before {
		t.Fatalf("turn count changed while paused: %d -> %d", before, dctx.TurnCount())
	}

	ctrl.Control(CmdResume)
	waitForPhase(t, dctx, event.PhaseRunning, time.Second)

	if err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if dctx.Phase() != event.PhaseStopped {
		t.Fatalf("expected Stopped after Stop, got %s", dctx.Phase())
	}
}

func TestController_SubstitutesOnPermanentFailure(t *testing.T) {
	roster := []discussion.AgentSpec{
		{ID: "alpha", Persona: "alpha"},
		{ID: "beta", Persona: "beta"},
	}
	backend := newFakeBackend()
	backend.script["alpha"] = []error{
		discerr.NewAgentError("boom", nil, discerr.AgentKindPermanent).WithAgentID("alpha"),
	}
	ctrl, dctx, bus := testController(t, roster, backend, 1)

	var substituted bool
	var mu sync.Mutex
	bus.Subscribe("agent.substituted", func(e event.Event) {
		mu.Lock()
		substituted = true
		mu.Unlock()
	})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForPhase(t, dctx, event.PhaseStopped, 2*time.Second)

	mu.Lock()
	got := substituted
	mu.Unlock()
	if !got {
		t.Error("expected an agent.substituted event after alpha's permanent failure")
	}

	turns := dctx.Snapshot()
	foundBeta := false
	for _, tr := range turns {
		if tr.AgentID == "beta" {
			foundBeta = true
		}
	}
	if !foundBeta {
		t.Error("expected beta to produce the turn after alpha was substituted out")
	}
}

// TestController_PausesWhenNoCandidateSucceeds exercises the
// exhausted-substitution path: the lone participant fails Think, there is no
// fallback candidate, and the Controller must pause rather than spin.
func TestController_PausesWhenNoCandidateSucceeds(t *testing.T) {
	roster := []discussion.AgentSpec{{ID: "alpha", Persona: "alpha"}}
	backend := newFakeBackend()
	failing := discerr.NewAgentError("boom", nil, discerr.AgentKindPermanent).WithAgentID("alpha")
	backend.script["alpha"] = []error{failing, failing, failing, failing, failing}

	ctrl, dctx, _ := testController(t, roster, backend, 50)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForPhase(t, dctx, event.PhasePaused, 2*time.Second)
	_ = ctrl.Stop(context.Background())
}

func TestController_PostUserInputResumesFromPause(t *testing.T) {
	roster := []discussion.AgentSpec{{ID: "alpha", Persona: "alpha"}}
	backend := newFakeBackend()
	ctrl, dctx, _ := testController(t, roster, backend, 50)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForPhase(t, dctx, event.PhaseRunning, time.Second)
	ctrl.Control(CmdPause)
	waitForPhase(t, dctx, event.PhasePaused, time.Second)

	before := dctx.Round()
	ctrl.PostUserInput("one more thing")
	waitForPhase(t, dctx, event.PhaseRunning, time.Second)

	if dctx.Round() != 0 && before != 0 {
		// Round resets to 0 on user input; nothing more to assert generically here.
		t.Logf("round after resume: %d", dctx.Round())
	}
	_ = ctrl.Stop(context.Background())
}
