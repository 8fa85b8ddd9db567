package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // dotted config path, e.g. "engine.max_turns"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

func isValidLogLevel(level string) bool {
	for _, v := range ValidLogLevels() {
		if level == v {
			return true
		}
	}
	return false
}

// Validate checks the Config for invalid values and returns every failure
// found, rather than stopping at the first.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validateSVR()...)
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError
	if c.Server.BindPort <= 0 || c.Server.BindPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.bind_port",
			Value:   c.Server.BindPort,
			Message: "must be between 1 and 65535",
		})
	}
	return errs
}

func (c *Config) validateEngine() []ValidationError {
	var errs []ValidationError
	e := c.Engine

	nonNegative := map[string]int{
		"engine.think_timeout_ms":             e.ThinkTimeoutMs,
		"engine.svr_deadline_ms":               e.SVRDeadlineMs,
		"engine.publish_timeout_ms":            e.PublishTimeoutMs,
		"engine.max_duration_sec":              e.MaxDurationSec,
		"engine.max_turns":                     e.MaxTurns,
		"engine.shutdown_grace_sec":            e.ShutdownGraceSec,
		"engine.history_window_turns":          e.HistoryWindowTurns,
		"engine.history_window_tokens":         e.HistoryWindowTokens,
		"engine.participation_window":          e.ParticipationWindow,
		"engine.min_rounds_before_stop":        e.MinRoundsBeforeStop,
		"engine.max_substitutions_per_round":   e.MaxSubstitutionsPerRound,
		"engine.persist_lag_cap":               e.PersistLagCap,
		"engine.max_permanent_failures":        e.MaxPermanentFailures,
		"engine.retry_base_delay_ms":           e.RetryBaseDelayMs,
		"engine.retry_cap_delay_ms":            e.RetryCapDelayMs,
		"engine.max_backend_retries":           e.MaxBackendRetries,
	}
	for field, v := range nonNegative {
		if v < 0 {
			errs = append(errs, ValidationError{Field: field, Value: v, Message: "must be non-negative"})
		}
	}

	// MaxTurns == 0 is explicitly legal (spec §8 boundary: "Stop immediately
	// with budget reason"), so it is excluded from the non-negative-only
	// check above by being >= 0, not required to be > 0.

	if e.RetryCapDelayMs > 0 && e.RetryBaseDelayMs > e.RetryCapDelayMs {
		errs = append(errs, ValidationError{
			Field:   "engine.retry_base_delay_ms",
			Value:   e.RetryBaseDelayMs,
			Message: "must not exceed retry_cap_delay_ms",
		})
	}

	return errs
}

func (c *Config) validateSVR() []ValidationError {
	var errs []ValidationError
	s := c.SVR

	unit := map[string]float64{
		"svr.stop_threshold": s.StopThreshold,
		"svr.quality_floor":  s.QualityFloor,
	}
	for field, v := range unit {
		if v < 0 || v > 1 {
			errs = append(errs, ValidationError{Field: field, Value: v, Message: "must be within [0,1]"})
		}
	}

	if s.QualityLenFloor < 0 || s.QualityLenCeil < s.QualityLenFloor {
		errs = append(errs, ValidationError{
			Field:   "svr.quality_len_ceil",
			Value:   s.QualityLenCeil,
			Message: "must be >= svr.quality_len_floor, both non-negative",
		})
	}

	if s.NGramSize < 1 {
		errs = append(errs, ValidationError{Field: "svr.ngram_size", Value: s.NGramSize, Message: "must be >= 1"})
	}

	errs = append(errs, validateWeightSum("svr.stop_weights", s.StopWeights.ConsensusContribution,
		s.StopWeights.Saturation, s.StopWeights.Fatigue, s.StopWeights.GlobalStopSignal, s.StopWeights.TimeFactor)...)
	errs = append(errs, validateWeightSum("svr.value_weights", s.ValueWeights.TurnQuality,
		s.ValueWeights.HistoryPerformance, s.ValueWeights.InteractionPotential, s.ValueWeights.TopicalRelevance)...)
	errs = append(errs, validateWeightSum("svr.repeat_weights", s.RepeatWeights.SelfSimilarity,
		s.RepeatWeights.PatternRepetition, s.RepeatWeights.ArgumentRecycling, s.RepeatWeights.FrequencyRisk)...)

	return errs
}

// validateWeightSum checks that a group of dimension weights sums to
// approximately 1.0, matching the reconciled defaults in spec §4.3.
func validateWeightSum(field string, weights ...float64) []ValidationError {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	const epsilon = 1e-6
	if sum < 1-epsilon || sum > 1+epsilon {
		return []ValidationError{{
			Field:   field,
			Value:   sum,
			Message: "weights must sum to 1.0",
		}}
	}
	return nil
}

func (c *Config) validateAgent() []ValidationError {
	var errs []ValidationError
	a := c.Agent

	if a.Backend != "" && a.Backend != "scripted" && a.Backend != "http" {
		errs = append(errs, ValidationError{
			Field:   "agent.backend",
			Value:   a.Backend,
			Message: "must be one of: scripted, http",
		})
	}

	if a.Backend == "http" && a.HTTP.Endpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "agent.http.endpoint",
			Value:   a.HTTP.Endpoint,
			Message: "must be set when agent.backend is \"http\"",
		})
	}

	if a.HTTP.TimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.http.timeout_ms",
			Value:   a.HTTP.TimeoutMs,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if c.Logging.Level != "" && !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	return errs
}
