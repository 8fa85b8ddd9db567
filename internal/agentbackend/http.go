package agentbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/discussiond/engine/internal/config"
	"github.com/discussiond/engine/internal/discussion"
	discerr "github.com/discussiond/engine/internal/errors"
)

// HTTPBackend routes Think calls to a configurable HTTP endpoint speaking a
// small JSON request/response shape. It retries transient failures with the
// same exponential backoff the teacher's bridge used for polling, generalized
// here to "retry a failed Think call".
type HTTPBackend struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	capDelay   time.Duration
}

type httpThinkRequest struct {
	SystemPrompt string           `json:"system_prompt"`
	History      []historyMessage `json:"history"`
	Temperature  float64          `json:"temperature,omitempty"`
	MaxTokens    int              `json:"max_tokens,omitempty"`
}

type historyMessage struct {
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
}

type httpThinkResponse struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// NewHTTPBackend builds an HTTPBackend from the given section of Config.
// It returns an error rather than deferring failure to the first Think call
// when the endpoint is missing, so misconfiguration surfaces at startup.
func NewHTTPBackend(cfg config.HTTPBackendConfig) (*HTTPBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("agentbackend: http backend requires agent.http.endpoint")
	}
	return &HTTPBackend{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		maxRetries: 2,
		baseDelay:  250 * time.Millisecond,
		capDelay:   2 * time.Second,
	}, nil
}

func (b *HTTPBackend) Name() Name { return BackendHTTP }

func (b *HTTPBackend) DisplayName() string { return "HTTP Agent" }

// WithRetryPolicy overrides the retry count and backoff bounds. Exposed so
// callers building the backend from EngineConfig (rather than from defaults)
// can match the engine-wide retry settings.
func (b *HTTPBackend) WithRetryPolicy(maxRetries int, base, cap time.Duration) *HTTPBackend {
	b.maxRetries = maxRetries
	b.baseDelay = base
	b.capDelay = cap
	return b
}

// Think POSTs the system prompt and flattened history to the configured
// endpoint, retrying transient failures (5xx and 429 responses, connection
// errors, unreadable response bodies) up to maxRetries times with exponential
// backoff. A response body that is not valid JSON is a Permanent failure and
// is not retried. A canceled or expired ctx is classified and returned
// immediately without retrying.
func (b *HTTPBackend) Think(ctx context.Context, systemPrompt string, history []discussion.Turn, params ThinkParams) (ThinkResult, error) {
	agentID := ""
	if len(history) > 0 {
		agentID = history[len(history)-1].AgentID
	}

	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, b.baseDelay, b.capDelay)
			select {
			case <-ctx.Done():
				kind, _ := classifyContextErr(ctx)
				return ThinkResult{}, newAgentThinkError(agentID, "think call aborted while backing off", kind, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := b.doThink(ctx, agentID, systemPrompt, history, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var agentErr *discerr.AgentError
		if !discerr.As(err, &agentErr) || agentErr.Kind != discerr.AgentKindTransient {
			return ThinkResult{}, err
		}
	}

	return ThinkResult{}, lastErr
}

func (b *HTTPBackend) doThink(ctx context.Context, agentID, systemPrompt string, history []discussion.Turn, params ThinkParams) (ThinkResult, error) {
	if kind, timedOut := classifyContextErr(ctx); timedOut {
		return ThinkResult{}, newAgentThinkError(agentID, "think call aborted", kind, ctx.Err())
	}

	messages := make([]historyMessage, len(history))
	for i, t := range history {
		messages[i] = historyMessage{AgentID: t.AgentID, Content: t.Content}
	}

	payload, err := json.Marshal(httpThinkRequest{
		SystemPrompt: systemPrompt,
		History:      messages,
		Temperature:  params.Temperature,
		MaxTokens:    params.MaxTokens,
	})
	if err != nil {
		return ThinkResult{}, newAgentThinkError(agentID, "failed to encode think request", discerr.AgentKindPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return ThinkResult{}, newAgentThinkError(agentID, "failed to build think request", discerr.AgentKindPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if kind, timedOut := classifyContextErr(ctx); timedOut {
			return ThinkResult{}, newAgentThinkError(agentID, "think call aborted", kind, err)
		}
		return ThinkResult{}, newAgentThinkError(agentID, "agent backend communication failed", discerr.AgentKindTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ThinkResult{}, newAgentThinkError(agentID, "failed to read think response", discerr.AgentKindTransient, err)
	}

	if resp.StatusCode >= 500 {
		return ThinkResult{}, newAgentThinkError(agentID, fmt.Sprintf("agent backend returned %d", resp.StatusCode), discerr.AgentKindTransient, fmt.Errorf("%s", body))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ThinkResult{}, newAgentThinkError(agentID, "agent backend rate limited the request", discerr.AgentKindTransient, fmt.Errorf("%s", body))
	}
	if resp.StatusCode >= 400 {
		return ThinkResult{}, newAgentThinkError(agentID, fmt.Sprintf("agent backend rejected the request (%d)", resp.StatusCode), discerr.AgentKindPermanent, fmt.Errorf("%s", body))
	}

	var parsed httpThinkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ThinkResult{}, newAgentThinkError(agentID, "malformed think response", discerr.AgentKindPermanent, err)
	}

	return ThinkResult{Content: parsed.Content, TokensUsed: parsed.TokensUsed}, nil
}
