// Package config loads, merges, and validates the engine configuration from
// a YAML file plus built-in defaults, with environment-variable expansion.
package config

import "time"

// EngineConfig bounds the investigation lifecycle.
type EngineConfig struct {
	// MaxIterations bounds the number of collecting→reasoning cycles.
	MaxIterations int `yaml:"max_iterations"`

	// OverallDeadline is the total budget of one investigation.
	OverallDeadline time.Duration `yaml:"overall_deadline"`

	// TaskDeadline is the per-task default, overridable per adapter.
	TaskDeadline time.Duration `yaml:"task_deadline"`

	// ConcurrentTasks bounds parallel tasks within one investigation.
	ConcurrentTasks int `yaml:"concurrent_tasks"`

	// ProcessTaskCap bounds parallel tasks across all investigations.
	ProcessTaskCap int `yaml:"process_task_cap"`

	// AutoResolveThreshold is the confidence at or above which a hypothesis
	// is declared root cause.
	AutoResolveThreshold float64 `yaml:"auto_resolve_threshold"`

	// EliminationThreshold is the confidence at or below which a hypothesis
	// is eliminated and stays eliminated.
	EliminationThreshold float64 `yaml:"elimination_threshold"`

	// TieBreakMargin is the minimum lead over the runner-up required for
	// auto-resolve.
	TieBreakMargin float64 `yaml:"tie_break_margin"`

	// HeartbeatInterval is the cadence of heartbeat events.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// EventQueueLen bounds each stream subscriber's queue.
	EventQueueLen int `yaml:"event_queue_len"`

	// MaxEvidence caps evidence items per investigation.
	MaxEvidence int `yaml:"max_evidence"`

	// RawPayloadCapBytes caps the raw field of query_executed events.
	RawPayloadCapBytes int `yaml:"raw_payload_cap_bytes"`

	// CancelGrace is how long agents have to exit after cancellation.
	CancelGrace time.Duration `yaml:"cancel_grace"`

	// MaxLLMHypotheses caps LLM-suggested hypothesis seeding.
	MaxLLMHypotheses int `yaml:"max_llm_hypotheses"`
}

// ScoringConfig parameterizes the confidence-update formula.
type ScoringConfig struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// AuthMethod is the adapter authentication method.
type AuthMethod string

const (
	AuthHMACSHA1 AuthMethod = "hmac-sha1"
	AuthBasic    AuthMethod = "basic"
	AuthAPIKey   AuthMethod = "api-key"
	AuthIAM      AuthMethod = "iam"
	AuthNone     AuthMethod = ""
)

// IsValid checks whether the auth method is recognized.
func (a AuthMethod) IsValid() bool {
	switch a {
	case AuthHMACSHA1, AuthBasic, AuthAPIKey, AuthIAM, AuthNone:
		return true
	default:
		return false
	}
}

// BackoffConfig is the retry backoff curve: exponential(base_ms, max_ms).
type BackoffConfig struct {
	BaseMs int `yaml:"base_ms"`
	MaxMs  int `yaml:"max_ms"`
}

// AdapterConfig enumerates the recognized per-adapter options.
type AdapterConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Auth             AuthMethod    `yaml:"auth"`
	CredentialEnv    string        `yaml:"credential_env"`
	Timeout          time.Duration `yaml:"timeout"`
	RateLimitPerSec  float64       `yaml:"rate_limit_per_sec"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	Backoff          BackoffConfig `yaml:"backoff"`
	ChunkDays        int           `yaml:"chunk_days"` // historical adapters: date-range window
	Disabled         bool          `yaml:"disabled"`
	BreakerThreshold int           `yaml:"breaker_threshold"` // consecutive failures before the breaker opens
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port             string        `yaml:"port"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// LLMConfig configures the Anthropic-backed extractor/reasoner.
type LLMConfig struct {
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Disabled    bool    `yaml:"disabled"`
}

// JournalConfig configures the optional Postgres event journal.
type JournalConfig struct {
	DSNEnv  string `yaml:"dsn_env"`
	Enabled bool   `yaml:"enabled"`
}

// Config is the umbrella configuration object returned by Initialize.
type Config struct {
	configDir string

	Engine   *EngineConfig            `yaml:"engine"`
	Scoring  *ScoringConfig           `yaml:"scoring"`
	Adapters map[string]AdapterConfig `yaml:"adapters"`
	Server   *ServerConfig            `yaml:"server"`
	LLM      *LLMConfig               `yaml:"llm"`
	Journal  *JournalConfig           `yaml:"journal"`

	// PatternsFile optionally overrides the built-in pattern library.
	PatternsFile string `yaml:"patterns_file"`

	// DecisionTreeDir optionally holds per-mode decision trees (YAML).
	DecisionTreeDir string `yaml:"decision_tree_dir"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Adapter returns the configuration for one adapter. Unconfigured adapters
// get a zero config with defaults applied downstream.
func (c *Config) Adapter(name string) AdapterConfig {
	return c.Adapters[name]
}

// EnabledAdapters returns the names of adapters not disabled by config,
// filtered to the given candidates.
func (c *Config) EnabledAdapters(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if ac, ok := c.Adapters[name]; ok && ac.Disabled {
			continue
		}
		out = append(out, name)
	}
	return out
}
