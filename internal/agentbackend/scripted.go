package agentbackend

import (
	"context"
	"sync"

	"github.com/discussiond/engine/internal/discussion"
)

// ScriptedBackend answers Think deterministically from a fixed list of
// canned responses, cycling through them per agent. It has no external
// dependency and exists for tests, demos, and offline development where no
// real agent backend is configured.
type ScriptedBackend struct {
	mu        sync.Mutex
	responses []string
	calls     map[string]int
}

// NewScriptedBackend builds a ScriptedBackend. A nil or empty responses
// slice falls back to a single generic acknowledgement.
func NewScriptedBackend(responses []string) *ScriptedBackend {
	if len(responses) == 0 {
		responses = []string{"I have nothing further to add."}
	}
	return &ScriptedBackend{
		responses: responses,
		calls:     make(map[string]int),
	}
}

func (b *ScriptedBackend) Name() Name { return BackendScripted }

func (b *ScriptedBackend) DisplayName() string { return "Scripted" }

// Think ignores systemPrompt. It keys the response cycle on the AgentID of
// the last history turn ("unknown" for an empty history) and otherwise uses
// history only through formatHistory, to size a plausible TokensUsed
// estimate; it never errors except on a canceled or expired ctx, which it
// reports as the matching AgentKind.
func (b *ScriptedBackend) Think(ctx context.Context, systemPrompt string, history []discussion.Turn, params ThinkParams) (ThinkResult, error) {
	if kind, timedOut := classifyContextErr(ctx); timedOut {
		return ThinkResult{}, newAgentThinkError("", "scripted backend call aborted", kind, ctx.Err())
	}

	agentID := "unknown"
	if len(history) > 0 {
		agentID = history[len(history)-1].AgentID
	}

	b.mu.Lock()
	idx := b.calls[agentID] % len(b.responses)
	b.calls[agentID]++
	b.mu.Unlock()

	content := b.responses[idx]
	transcript := formatHistory(history)

	return ThinkResult{
		Content:    content,
		TokensUsed: len(content)/4 + len(transcript)/16 + 1,
	}, nil
}
