package config

import "fmt"

// validate checks the merged configuration for invalid values. All errors
// are collected component-by-component; the first failure is returned with
// its context so operators can fix one thing at a time.
func validate(cfg *Config) error {
	e := cfg.Engine
	if e.MaxIterations < 1 {
		return NewValidationError("engine", "engine", "max_iterations", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if e.OverallDeadline <= 0 {
		return NewValidationError("engine", "engine", "overall_deadline", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if e.TaskDeadline <= 0 || e.TaskDeadline > e.OverallDeadline {
		return NewValidationError("engine", "engine", "task_deadline", fmt.Errorf("%w: must be positive and <= overall_deadline", ErrInvalidValue))
	}
	if e.ConcurrentTasks < 1 {
		return NewValidationError("engine", "engine", "concurrent_tasks", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if e.ProcessTaskCap < e.ConcurrentTasks {
		return NewValidationError("engine", "engine", "process_task_cap", fmt.Errorf("%w: must be >= concurrent_tasks", ErrInvalidValue))
	}
	if e.AutoResolveThreshold <= 0 || e.AutoResolveThreshold > 1 {
		return NewValidationError("engine", "engine", "auto_resolve_threshold", fmt.Errorf("%w: must be in (0, 1]", ErrInvalidValue))
	}
	if e.EliminationThreshold < 0 || e.EliminationThreshold >= e.AutoResolveThreshold {
		return NewValidationError("engine", "engine", "elimination_threshold", fmt.Errorf("%w: must be in [0, auto_resolve_threshold)", ErrInvalidValue))
	}
	if e.TieBreakMargin < 0 || e.TieBreakMargin > 1 {
		return NewValidationError("engine", "engine", "tie_break_margin", fmt.Errorf("%w: must be in [0, 1]", ErrInvalidValue))
	}
	if e.EventQueueLen < 1 {
		return NewValidationError("engine", "engine", "event_queue_len", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}

	s := cfg.Scoring
	if s.Alpha <= 0 {
		return NewValidationError("scoring", "scoring", "alpha", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.Beta <= 0 {
		return NewValidationError("scoring", "scoring", "beta", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	for name, ac := range cfg.Adapters {
		if !ac.Auth.IsValid() {
			return NewValidationError("adapter", name, "auth", fmt.Errorf("%w: %q", ErrInvalidValue, ac.Auth))
		}
		if ac.Auth != AuthNone && ac.Auth != AuthIAM && ac.CredentialEnv == "" {
			return NewValidationError("adapter", name, "credential_env", ErrMissingRequiredField)
		}
		if ac.RateLimitPerSec < 0 {
			return NewValidationError("adapter", name, "rate_limit_per_sec", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
		}
		if ac.Backoff.MaxMs < ac.Backoff.BaseMs {
			return NewValidationError("adapter", name, "backoff", fmt.Errorf("%w: max_ms must be >= base_ms", ErrInvalidValue))
		}
	}

	if cfg.Server.Port == "" {
		return NewValidationError("server", "server", "port", ErrMissingRequiredField)
	}

	return nil
}
