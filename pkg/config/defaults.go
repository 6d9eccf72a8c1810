package config

import "time"

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxIterations:        5,
		OverallDeadline:      120 * time.Second,
		TaskDeadline:         15 * time.Second,
		ConcurrentTasks:      8,
		ProcessTaskCap:       64,
		AutoResolveThreshold: 0.80,
		EliminationThreshold: 0.10,
		TieBreakMargin:       0.15,
		HeartbeatInterval:    1 * time.Second,
		EventQueueLen:        1024,
		MaxEvidence:          10000,
		RawPayloadCapBytes:   32 * 1024,
		CancelGrace:          2 * time.Second,
		MaxLLMHypotheses:     5,
	}
}

// DefaultScoringConfig returns the built-in scoring parameters.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Alpha: 0.15,
		Beta:  1.2,
	}
}

// DefaultServerConfig returns the built-in HTTP server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            "8080",
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// DefaultLLMConfig returns the built-in LLM client defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		APIKeyEnv: "ANTHROPIC_API_KEY",
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 1024,
	}
}

// defaultAdapterConfig fills unset per-adapter options.
func defaultAdapterConfig(ac AdapterConfig) AdapterConfig {
	if ac.Timeout <= 0 {
		ac.Timeout = 15 * time.Second
	}
	if ac.RetryAttempts < 0 {
		ac.RetryAttempts = 0
	}
	if ac.Backoff.BaseMs <= 0 {
		ac.Backoff.BaseMs = 200
	}
	if ac.Backoff.MaxMs <= 0 {
		ac.Backoff.MaxMs = 5000
	}
	if ac.ChunkDays <= 0 {
		ac.ChunkDays = 7
	}
	if ac.BreakerThreshold <= 0 {
		ac.BreakerThreshold = 5
	}
	return ac
}
