// Package config defines the engine's single configuration record and its
// viper-backed loader. Every tunable named in the specification — timeouts,
// SVR weights, decision thresholds — lives on EngineConfig so the core never
// re-reads files or environment variables at runtime.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete discussiond configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	SVR     SVRConfig     `mapstructure:"svr"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Logging LoggingConfig `mapstructure:"logging"`
	Paths   PathsConfig   `mapstructure:"paths"`
}

// AgentConfig selects and configures the AgentBackend every room's
// participants are routed through (spec §4.1).
type AgentConfig struct {
	// Backend names the default agentbackend.Name a room uses when an
	// AgentSpec does not name its own. Empty means "scripted".
	Backend string            `mapstructure:"backend"`
	HTTP    HTTPBackendConfig `mapstructure:"http"`
}

// HTTPBackendConfig configures the net/http-based AgentBackend adapter.
type HTTPBackendConfig struct {
	// Endpoint is the base URL a Think call POSTs to.
	Endpoint string `mapstructure:"endpoint"`
	// TimeoutMs bounds a single HTTP round trip, independent of the
	// engine-wide ThinkTimeout (default 10s).
	TimeoutMs int `mapstructure:"timeout_ms"`
	// APIKey, when non-empty, is sent as a bearer token.
	APIKey string `mapstructure:"api_key"`
}

func (h HTTPBackendConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMs) * time.Millisecond
}

// ServerConfig controls the bind address for the client-facing transport.
type ServerConfig struct {
	// BindHost is the interface the WebSocket/HTTP server listens on.
	BindHost string `mapstructure:"bind_host"`
	// BindPort is the TCP port the server listens on.
	BindPort int `mapstructure:"bind_port"`
}

// EngineConfig holds every timeout and budget named in spec §5.
type EngineConfig struct {
	// ThinkTimeoutMs bounds a single AgentBackend.Think call (default 30s).
	ThinkTimeoutMs int `mapstructure:"think_timeout_ms"`
	// SVRDeadlineMs bounds ParallelSVREngine.Compute for one tick (default 1.5s).
	SVRDeadlineMs int `mapstructure:"svr_deadline_ms"`
	// PublishTimeoutMs bounds a single ClientHub.Publish call (default 100ms).
	PublishTimeoutMs int `mapstructure:"publish_timeout_ms"`
	// MaxDurationSec is the hard wall-clock budget for one discussion session
	// (default 3600s).
	MaxDurationSec int `mapstructure:"max_duration_sec"`
	// MaxTurns is the hard turn-count budget (default 50).
	MaxTurns int `mapstructure:"max_turns"`
	// ShutdownGraceSec bounds how long the process waits for a Controller to
	// reach Stopped during shutdown (default 5s).
	ShutdownGraceSec int `mapstructure:"shutdown_grace_sec"`
	// HistoryWindowTurns caps the number of turns fed to a Think call.
	HistoryWindowTurns int `mapstructure:"history_window_turns"`
	// HistoryWindowTokens caps the token budget of the same window, whichever
	// is tighter wins (default 8000).
	HistoryWindowTokens int `mapstructure:"history_window_tokens"`
	// ParticipationWindow is W in spec §4.2's ParticipationStats (default 10).
	ParticipationWindow int `mapstructure:"participation_window"`
	// MinRoundsBeforeStop gates the consensus-stop and quality-floor rules
	// (default 2).
	MinRoundsBeforeStop int `mapstructure:"min_rounds_before_stop"`
	// MaxSubstitutionsPerRound caps agent substitutions after a Think failure
	// (default 2).
	MaxSubstitutionsPerRound int `mapstructure:"max_substitutions_per_round"`
	// PersistLagCap is the backlog (in turns) at which the Controller emits a
	// persistence_degraded warning (default 200).
	PersistLagCap int `mapstructure:"persist_lag_cap"`
	// MaxPermanentFailures marks an agent degraded after this many Permanent
	// errors within one session (default 2).
	MaxPermanentFailures int `mapstructure:"max_permanent_failures"`
	// RetryBaseDelayMs is the base backoff delay for AgentBackend retries
	// (default 250ms).
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms"`
	// RetryCapDelayMs is the maximum backoff delay (default 2s).
	RetryCapDelayMs int `mapstructure:"retry_cap_delay_ms"`
	// MaxBackendRetries is the number of internal retries AgentBackend may
	// perform for a transient error (default 2).
	MaxBackendRetries int `mapstructure:"max_backend_retries"`
}

func (e EngineConfig) ThinkTimeout() time.Duration {
	return time.Duration(e.ThinkTimeoutMs) * time.Millisecond
}

func (e EngineConfig) SVRDeadline() time.Duration {
	return time.Duration(e.SVRDeadlineMs) * time.Millisecond
}

func (e EngineConfig) PublishTimeout() time.Duration {
	return time.Duration(e.PublishTimeoutMs) * time.Millisecond
}

func (e EngineConfig) MaxDuration() time.Duration {
	return time.Duration(e.MaxDurationSec) * time.Second
}

func (e EngineConfig) ShutdownGrace() time.Duration {
	return time.Duration(e.ShutdownGraceSec) * time.Second
}

func (e EngineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(e.RetryBaseDelayMs) * time.Millisecond
}

func (e EngineConfig) RetryCapDelay() time.Duration {
	return time.Duration(e.RetryCapDelayMs) * time.Millisecond
}

// SVRConfig holds the weighted-dimension defaults from spec §4.3 plus the
// Decider thresholds from §4.5. Declaring every weight here keeps the single
// `stop_threshold` value unambiguous, per the Open Question in spec §9.
type SVRConfig struct {
	StopWeights   StopWeights   `mapstructure:"stop_weights"`
	ValueWeights  ValueWeights  `mapstructure:"value_weights"`
	RepeatWeights RepeatWeights `mapstructure:"repeat_weights"`

	// StopThreshold is the single configurable consensus-stop threshold
	// (default 0.80). The source mixed 0.7/0.8/0.85 across layers; this is
	// the one value the Decider reads.
	StopThreshold float64 `mapstructure:"stop_threshold"`
	// QualityFloor gates the RedirectToUser rule (default 0.20).
	QualityFloor float64 `mapstructure:"quality_floor"`
	// FatiguePeakShare is the participation share at which fatigue saturates
	// to 1.0 (default 0.6).
	FatiguePeakShare float64 `mapstructure:"fatigue_peak_share"`
	// SoftCapMinRounds is the minimum softCap value regardless of
	// participant count (default 6).
	SoftCapMinRounds int `mapstructure:"soft_cap_min_rounds"`
	// SoftCapPerParticipant multiplies participant count to form the soft
	// cap alongside SoftCapMinRounds (default 2).
	SoftCapPerParticipant int `mapstructure:"soft_cap_per_participant"`
	// QualityLenFloor / QualityLenCeil bound the "turn quality" length
	// window from spec §4.3 (default 40, 600 characters).
	QualityLenFloor int `mapstructure:"quality_len_floor"`
	QualityLenCeil  int `mapstructure:"quality_len_ceil"`
	// NGramSize is n in the pattern-repetition dimension (default 3).
	NGramSize int `mapstructure:"ngram_size"`
}

// StopWeights are the weights for the "stop" SVR dimension (spec §4.3).
type StopWeights struct {
	ConsensusContribution float64 `mapstructure:"consensus_contribution"`
	Saturation            float64 `mapstructure:"saturation"`
	Fatigue               float64 `mapstructure:"fatigue"`
	GlobalStopSignal      float64 `mapstructure:"global_stop_signal"`
	TimeFactor            float64 `mapstructure:"time_factor"`
}

// ValueWeights are the weights for the "value" SVR dimension (spec §4.3).
type ValueWeights struct {
	TurnQuality          float64 `mapstructure:"turn_quality"`
	HistoryPerformance   float64 `mapstructure:"history_performance"`
	InteractionPotential float64 `mapstructure:"interaction_potential"`
	TopicalRelevance     float64 `mapstructure:"topical_relevance"`
}

// RepeatWeights are the weights for the "repeat" SVR dimension (spec §4.3).
type RepeatWeights struct {
	SelfSimilarity     float64 `mapstructure:"self_similarity"`
	PatternRepetition  float64 `mapstructure:"pattern_repetition"`
	ArgumentRecycling  float64 `mapstructure:"argument_recycling"`
	FrequencyRisk      float64 `mapstructure:"frequency_risk"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// Dir is the directory the process-wide debug.log is written under. An
	// empty value (the default) writes logs to stderr instead, and disables
	// rotation (there is no file to rotate).
	Dir string `mapstructure:"dir"`
	// RotateMaxSizeMB is the size in megabytes debug.log is allowed to grow
	// to before it rotates. 0 disables rotation.
	RotateMaxSizeMB int `mapstructure:"rotate_max_size_mb"`
	// RotateMaxBackups is the number of rotated debug.log.N files kept.
	RotateMaxBackups int `mapstructure:"rotate_max_backups"`
	// RotateCompress gzips rotated debug.log.N files.
	RotateCompress bool `mapstructure:"rotate_compress"`
}

// PathsConfig controls where room state is persisted.
type PathsConfig struct {
	// RoomDir is the base directory under which each room gets a
	// subdirectory containing manifest.yaml and turns.log.
	RoomDir string `mapstructure:"room_dir"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindHost: "0.0.0.0",
			BindPort: 8080,
		},
		Engine: EngineConfig{
			ThinkTimeoutMs:           30000,
			SVRDeadlineMs:            1500,
			PublishTimeoutMs:         100,
			MaxDurationSec:           3600,
			MaxTurns:                 50,
			ShutdownGraceSec:         5,
			HistoryWindowTurns:       40,
			HistoryWindowTokens:      8000,
			ParticipationWindow:      10,
			MinRoundsBeforeStop:      2,
			MaxSubstitutionsPerRound: 2,
			PersistLagCap:            200,
			MaxPermanentFailures:     2,
			RetryBaseDelayMs:         250,
			RetryCapDelayMs:          2000,
			MaxBackendRetries:        2,
		},
		SVR: SVRConfig{
			StopWeights: StopWeights{
				ConsensusContribution: 0.30,
				Saturation:             0.25,
				Fatigue:                0.15,
				GlobalStopSignal:       0.20,
				TimeFactor:             0.10,
			},
			ValueWeights: ValueWeights{
				TurnQuality:          0.35,
				HistoryPerformance:   0.25,
				InteractionPotential: 0.25,
				TopicalRelevance:     0.15,
			},
			RepeatWeights: RepeatWeights{
				SelfSimilarity:    0.40,
				PatternRepetition: 0.25,
				ArgumentRecycling: 0.20,
				FrequencyRisk:     0.15,
			},
			StopThreshold:         0.80,
			QualityFloor:          0.20,
			FatiguePeakShare:      0.6,
			SoftCapMinRounds:      6,
			SoftCapPerParticipant: 2,
			QualityLenFloor:       40,
			QualityLenCeil:        600,
			NGramSize:             3,
		},
		Agent: AgentConfig{
			Backend: "scripted",
			HTTP: HTTPBackendConfig{
				Endpoint:  "",
				TimeoutMs: 10000,
				APIKey:    "",
			},
		},
		Logging: LoggingConfig{
			Level:            "info",
			Dir:              "",
			RotateMaxSizeMB:  10,
			RotateMaxBackups: 3,
			RotateCompress:   false,
		},
		Paths: PathsConfig{
			RoomDir: "",
		},
	}
}

// SetDefaults registers every default onto viper so that partial config
// files and environment overrides layer on top cleanly.
func SetDefaults() {
	d := Default()

	viper.SetDefault("server.bind_host", d.Server.BindHost)
	viper.SetDefault("server.bind_port", d.Server.BindPort)

	viper.SetDefault("engine.think_timeout_ms", d.Engine.ThinkTimeoutMs)
	viper.SetDefault("engine.svr_deadline_ms", d.Engine.SVRDeadlineMs)
	viper.SetDefault("engine.publish_timeout_ms", d.Engine.PublishTimeoutMs)
	viper.SetDefault("engine.max_duration_sec", d.Engine.MaxDurationSec)
	viper.SetDefault("engine.max_turns", d.Engine.MaxTurns)
	viper.SetDefault("engine.shutdown_grace_sec", d.Engine.ShutdownGraceSec)
	viper.SetDefault("engine.history_window_turns", d.Engine.HistoryWindowTurns)
	viper.SetDefault("engine.history_window_tokens", d.Engine.HistoryWindowTokens)
	viper.SetDefault("engine.participation_window", d.Engine.ParticipationWindow)
	viper.SetDefault("engine.min_rounds_before_stop", d.Engine.MinRoundsBeforeStop)
	viper.SetDefault("engine.max_substitutions_per_round", d.Engine.MaxSubstitutionsPerRound)
	viper.SetDefault("engine.persist_lag_cap", d.Engine.PersistLagCap)
	viper.SetDefault("engine.max_permanent_failures", d.Engine.MaxPermanentFailures)
	viper.SetDefault("engine.retry_base_delay_ms", d.Engine.RetryBaseDelayMs)
	viper.SetDefault("engine.retry_cap_delay_ms", d.Engine.RetryCapDelayMs)
	viper.SetDefault("engine.max_backend_retries", d.Engine.MaxBackendRetries)

	viper.SetDefault("svr.stop_weights.consensus_contribution", d.SVR.StopWeights.ConsensusContribution)
	viper.SetDefault("svr.stop_weights.saturation", d.SVR.StopWeights.Saturation)
	viper.SetDefault("svr.stop_weights.fatigue", d.SVR.StopWeights.Fatigue)
	viper.SetDefault("svr.stop_weights.global_stop_signal", d.SVR.StopWeights.GlobalStopSignal)
	viper.SetDefault("svr.stop_weights.time_factor", d.SVR.StopWeights.TimeFactor)

	viper.SetDefault("svr.value_weights.turn_quality", d.SVR.ValueWeights.TurnQuality)
	viper.SetDefault("svr.value_weights.history_performance", d.SVR.ValueWeights.HistoryPerformance)
	viper.SetDefault("svr.value_weights.interaction_potential", d.SVR.ValueWeights.InteractionPotential)
	viper.SetDefault("svr.value_weights.topical_relevance", d.SVR.ValueWeights.TopicalRelevance)

	viper.SetDefault("svr.repeat_weights.self_similarity", d.SVR.RepeatWeights.SelfSimilarity)
	viper.SetDefault("svr.repeat_weights.pattern_repetition", d.SVR.RepeatWeights.PatternRepetition)
	viper.SetDefault("svr.repeat_weights.argument_recycling", d.SVR.RepeatWeights.ArgumentRecycling)
	viper.SetDefault("svr.repeat_weights.frequency_risk", d.SVR.RepeatWeights.FrequencyRisk)

	viper.SetDefault("svr.stop_threshold", d.SVR.StopThreshold)
	viper.SetDefault("svr.quality_floor", d.SVR.QualityFloor)
	viper.SetDefault("svr.fatigue_peak_share", d.SVR.FatiguePeakShare)
	viper.SetDefault("svr.soft_cap_min_rounds", d.SVR.SoftCapMinRounds)
	viper.SetDefault("svr.soft_cap_per_participant", d.SVR.SoftCapPerParticipant)
	viper.SetDefault("svr.quality_len_floor", d.SVR.QualityLenFloor)
	viper.SetDefault("svr.quality_len_ceil", d.SVR.QualityLenCeil)
	viper.SetDefault("svr.ngram_size", d.SVR.NGramSize)

	viper.SetDefault("agent.backend", d.Agent.Backend)
	viper.SetDefault("agent.http.endpoint", d.Agent.HTTP.Endpoint)
	viper.SetDefault("agent.http.timeout_ms", d.Agent.HTTP.TimeoutMs)
	viper.SetDefault("agent.http.api_key", d.Agent.HTTP.APIKey)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.dir", d.Logging.Dir)
	viper.SetDefault("logging.rotate_max_size_mb", d.Logging.RotateMaxSizeMB)
	viper.SetDefault("logging.rotate_max_backups", d.Logging.RotateMaxBackups)
	viper.SetDefault("logging.rotate_compress", d.Logging.RotateCompress)
	viper.SetDefault("paths.room_dir", d.Paths.RoomDir)
}

// Load reads configuration from viper (file + env + defaults) into a Config
// and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ResolveRoomDir returns the resolved room storage directory, defaulting to
// "./data/rooms" relative to the current working directory.
func (p *PathsConfig) ResolveRoomDir() string {
	if p.RoomDir != "" {
		return p.RoomDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".", "data", "rooms")
	}
	return filepath.Join(wd, "data", "rooms")
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "discussiond")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".discussiond"
	}
	return filepath.Join(home, ".config", "discussiond")
}
