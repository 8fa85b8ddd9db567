// Package agentbackend defines the AgentBackend contract (spec §4.1): the
// single opaque capability a room's agents use to produce a turn. It carries
// no process, worktree, or transport concept — implementations are free to
// call out to an HTTP API, a local script, or anything else that can answer
// Think within a deadline.
package agentbackend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/discussion"
	discerr "github.com/discussiond/engine/internal/errors"
)

// Name identifies a supported agent backend implementation.
type Name string

const (
	BackendScripted Name = "scripted"
	BackendHTTP     Name = "http"
)

func (n Name) String() string { return string(n) }

// ThinkParams carries per-call generation parameters. Zero values mean "use
// the backend's own default".
type ThinkParams struct {
	Temperature float64
	MaxTokens   int
}

// ThinkResult is what a successful Think call produces.
type ThinkResult struct {
	Content    string
	TokensUsed int
}

// Backend is the AgentBackend contract every room participant is routed
// through. Think must respect ctx's deadline (the engine applies
// EngineConfig.ThinkTimeout as the per-call deadline) and must classify any
// failure into the closed AgentKind taxonomy via *errors.AgentError.
type Backend interface {
	Name() Name
	DisplayName() string
	Think(ctx context.Context, systemPrompt string, history []discussion.Turn, params ThinkParams) (ThinkResult, error)
}

// ErrUnknownBackend is returned when the configured backend name is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown agent backend")

// NewFromConfig builds a Backend for the named agent backend configuration.
func NewFromConfig(cfg *config.Config, name Name) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("missing config")
	}

	switch Name(strings.ToLower(string(name))) {
	case BackendScripted, "":
		return NewScriptedBackend(nil), nil
	case BackendHTTP:
		return NewHTTPBackend(cfg.Agent.HTTP)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// formatHistory renders the turn history as a simple transcript. Concrete
// backends that speak a structured wire format (e.g. chat messages) should
// build their own representation instead of calling this; it exists for
// backends (like ScriptedBackend) that only need a flattened view.
func formatHistory(history []discussion.Turn) string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "[%s] %s\n", t.AgentID, t.Content)
	}
	return b.String()
}

// classifyContextErr turns a context error into the right AgentKind: Canceled
// for an explicit cancellation, Timeout for a deadline that elapsed.
func classifyContextErr(ctx context.Context) (discerr.AgentKind, bool) {
	switch ctx.Err() {
	case context.Canceled:
		return discerr.AgentKindCanceled, true
	case context.DeadlineExceeded:
		return discerr.AgentKindTimeout, true
	default:
		return 0, false
	}
}

// newAgentThinkError builds the *errors.AgentError a Think implementation
// should return for a classified failure, tagging it with the agent ID when
// known.
func newAgentThinkError(agentID, message string, kind discerr.AgentKind, cause error) error {
	var err *discerr.AgentError = discerr.NewAgentError(message, cause, kind)
	if agentID != "" {
		err = err.WithAgentID(agentID)
	}
	return err
}

// backoffDelay computes the delay before the nth retry (0-indexed), doubling
// from base up to cap. Grounded on the teacher's bridge.go retry-under-ctx
// polling idiom, generalized from "poll for instance completion" to "retry a
// failed Think call".
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if cap > 0 && d > cap {
			return cap
		}
	}
	if cap > 0 && d > cap {
		return cap
	}
	return d
}
