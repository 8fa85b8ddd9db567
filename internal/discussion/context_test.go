package discussion

import (
	"testing"

	"github.com/discussiond/engine/internal/event"
)

func newTestContext() *DiscussionContext {
	return NewDiscussionContext("room-1", "topic", []AgentSpec{
		{ID: "alpha", DisplayName: "Alpha"},
		{ID: "beta", DisplayName: "Beta"},
	})
}

func TestAppend_MonotonicTurnIDs(t *testing.T) {
	ctx := newTestContext()

	t1 := ctx.Append("alpha", "first", 10)
	t2 := ctx.Append("beta", "second", 12)
	t3 := ctx.Append("alpha", "third", 8)

	if t1.ID != 1 || t2.ID != 2 || t3.ID != 3 {
		t.Fatalf("expected monotonic turn IDs 1,2,3; got %d,%d,%d", t1.ID, t2.ID, t3.ID)
	}
	if ctx.TurnCount() != 3 {
		t.Fatalf("expected 3 turns, got %d", ctx.TurnCount())
	}
}

func TestRestoreDiscussionContext_ContinuesTurnIDsAndRound(t *testing.T) {
	roster := []AgentSpec{{ID: "alpha", DisplayName: "Alpha"}, {ID: "beta", DisplayName: "Beta"}}
	existing := []Turn{
		{ID: 1, AgentID: UserAgentID, Content: "start"},
		{ID: 2, AgentID: "alpha", Content: "one"},
		{ID: 3, AgentID: "beta", Content: "two"},
	}

	ctx := RestoreDiscussionContext("room-1", "topic", roster, existing)

	if ctx.TurnCount() != 3 {
		t.Fatalf("expected 3 restored turns, got %d", ctx.TurnCount())
	}
	if ctx.Round() != 2 {
		t.Fatalf("expected round 2 (two agent turns since last user turn), got %d", ctx.Round())
	}
	if ctx.Phase() != event.PhaseIdle {
		t.Fatalf("expected restored phase to be Idle, got %s", ctx.Phase())
	}

	turn := ctx.Append("alpha", "three", 5)
	if turn.ID != 4 {
		t.Fatalf("expected next turn ID to continue from the restored log at 4, got %d", turn.ID)
	}
}

func TestRestoreDiscussionContext_EmptyLogStartsFresh(t *testing.T) {
	roster := []AgentSpec{{ID: "alpha"}}
	ctx := RestoreDiscussionContext("room-1", "topic", roster, nil)

	turn := ctx.Append("alpha", "first", 1)
	if turn.ID != 1 {
		t.Fatalf("expected turn ID 1 for an empty restored log, got %d", turn.ID)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	ctx := newTestContext()
	ctx.Append("alpha", "first", 10)

	snap := ctx.Snapshot()
	snap[0].Content = "mutated"

	if ctx.Snapshot()[0].Content != "first" {
		t.Fatal("Snapshot should return a copy, not a view into internal state")
	}
}

func TestRecentWindow_BoundsByTurnCount(t *testing.T) {
	ctx := newTestContext()
	for i := 0; i < 10; i++ {
		ctx.Append("alpha", "x", 1)
	}

	window := ctx.RecentWindow(3, 0)
	if len(window) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(window))
	}
	if window[len(window)-1].ID != 10 {
		t.Fatalf("expected last turn ID 10, got %d", window[len(window)-1].ID)
	}
}

func TestRecentWindow_BoundsByTokenBudget(t *testing.T) {
	ctx := newTestContext()
	ctx.Append("alpha", "a", 100)
	ctx.Append("beta", "b", 100)
	ctx.Append("alpha", "c", 100)

	window := ctx.RecentWindow(10, 150)
	if len(window) != 1 {
		t.Fatalf("expected the token budget to keep only the newest turn, got %d", len(window))
	}
}

func TestRecentWindow_EmptyContext(t *testing.T) {
	ctx := newTestContext()
	if got := ctx.RecentWindow(5, 100); got != nil {
		t.Fatalf("expected nil window on an empty context, got %v", got)
	}
}

func TestParticipationStats_IncludesSilentAgents(t *testing.T) {
	ctx := newTestContext()
	ctx.Append("alpha", "x", 1)
	ctx.Append("alpha", "y", 1)

	stats := ctx.ParticipationStats(10)
	if stats["alpha"] != 1 {
		t.Errorf("alpha share = %v, want 1 (only speaker in window)", stats["alpha"])
	}
	if stats["beta"] != 0 {
		t.Errorf("beta share = %v, want 0 (silent participant)", stats["beta"])
	}
}

func TestParticipationStats_FractionOverWindow(t *testing.T) {
	ctx := newTestContext()
	ctx.Append("alpha", "1", 1)
	ctx.Append("beta", "2", 1)
	ctx.Append("alpha", "3", 1)
	ctx.Append("alpha", "4", 1)

	stats := ctx.ParticipationStats(4)
	if got := stats["alpha"]; got != 0.75 {
		t.Errorf("alpha share = %v, want 0.75 (3 of the last 4 turns)", got)
	}
	if got := stats["beta"]; got != 0.25 {
		t.Errorf("beta share = %v, want 0.25 (1 of the last 4 turns)", got)
	}
}

func TestRound_IncrementsOnAgentTurnsResetsOnUserTurn(t *testing.T) {
	ctx := newTestContext()
	if ctx.Round() != 0 {
		t.Fatalf("expected initial round 0, got %d", ctx.Round())
	}

	ctx.Append(UserAgentID, "topic", 0)
	if ctx.Round() != 0 {
		t.Fatalf("expected round 0 after a user turn, got %d", ctx.Round())
	}

	ctx.Append("alpha", "reply", 1)
	ctx.Append("beta", "reply", 1)
	if ctx.Round() != 2 {
		t.Fatalf("expected round 2 after 2 agent turns, got %d", ctx.Round())
	}

	ctx.Append(UserAgentID, "follow-up", 0)
	if ctx.Round() != 0 {
		t.Fatalf("expected round reset to 0 after a second user turn, got %d", ctx.Round())
	}
}

func TestSetPhase_LegalTransitions(t *testing.T) {
	ctx := newTestContext()
	if ctx.Phase() != event.PhaseIdle {
		t.Fatalf("expected initial phase Idle, got %v", ctx.Phase())
	}

	if err := ctx.SetPhase(event.PhaseRunning); err != nil {
		t.Fatalf("Idle -> Running should be legal: %v", err)
	}
	if err := ctx.SetPhase(event.PhasePaused); err != nil {
		t.Fatalf("Running -> Paused should be legal: %v", err)
	}
	if err := ctx.SetPhase(event.PhaseRunning); err != nil {
		t.Fatalf("Paused -> Running should be legal: %v", err)
	}
	if err := ctx.SetPhase(event.PhaseStopping); err != nil {
		t.Fatalf("Running -> Stopping should be legal: %v", err)
	}
	if err := ctx.SetPhase(event.PhaseStopped); err != nil {
		t.Fatalf("Stopping -> Stopped should be legal: %v", err)
	}
}

func TestSetPhase_IllegalTransition(t *testing.T) {
	ctx := newTestContext()
	if err := ctx.SetPhase(event.PhaseStopped); err == nil {
		t.Fatal("expected Idle -> Stopped to be rejected")
	}
}

func TestSetPhase_SameValueIsNoop(t *testing.T) {
	ctx := newTestContext()
	if err := ctx.SetPhase(event.PhaseIdle); err != nil {
		t.Fatalf("setting the same phase should be a no-op, got: %v", err)
	}
}

func TestView_ReflectsCounters(t *testing.T) {
	ctx := newTestContext()
	ctx.Append(UserAgentID, "topic", 0)
	ctx.Append("alpha", "reply", 10)

	v := ctx.View()
	if v.TotalTurns != 2 {
		t.Errorf("TotalTurns = %d, want 2", v.TotalTurns)
	}
	if v.Round != 1 {
		t.Errorf("Round = %d, want 1", v.Round)
	}
	if v.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set after the first user turn")
	}
	if v.LastUserInputAt.IsZero() {
		t.Error("expected LastUserInputAt to be set")
	}
}
