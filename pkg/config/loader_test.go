package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644))
	return dir
}

func TestInitializeDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Engine.MaxIterations)
	assert.Equal(t, 120*time.Second, cfg.Engine.OverallDeadline)
	assert.Equal(t, 0.80, cfg.Engine.AutoResolveThreshold)
	assert.Equal(t, 0.15, cfg.Scoring.Alpha)
	assert.Equal(t, 1.2, cfg.Scoring.Beta)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Journal.Enabled)
	assert.Empty(t, cfg.Adapters)
}

func TestInitializeMergesUserOverDefaults(t *testing.T) {
	dir := writeConfig(t, `
engine:
  max_iterations: 3
  auto_resolve_threshold: 0.9
scoring:
  alpha: 0.2
server:
  port: "9090"
adapters:
  tracking-api:
    endpoint: http://tracking.internal
    auth: hmac-sha1
    credential_env: TRACKING_SECRET
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, 3, cfg.Engine.MaxIterations)
	assert.Equal(t, 0.9, cfg.Engine.AutoResolveThreshold)
	assert.Equal(t, 0.2, cfg.Scoring.Alpha)
	assert.Equal(t, "9090", cfg.Server.Port)

	// Untouched values keep defaults.
	assert.Equal(t, 120*time.Second, cfg.Engine.OverallDeadline)
	assert.Equal(t, 1.2, cfg.Scoring.Beta)

	// Adapter defaults applied.
	ac := cfg.Adapter("tracking-api")
	assert.Equal(t, "http://tracking.internal", ac.Endpoint)
	assert.Equal(t, AuthHMACSHA1, ac.Auth)
	assert.Equal(t, 15*time.Second, ac.Timeout)
	assert.Equal(t, 200, ac.Backoff.BaseMs)
	assert.Equal(t, 5000, ac.Backoff.MaxMs)
	assert.Equal(t, 7, ac.ChunkDays)
	assert.Equal(t, 5, ac.BreakerThreshold)
}

func TestInitializeExpandsEnvironment(t *testing.T) {
	t.Setenv("SHIPSIGHT_TEST_ENDPOINT", "http://expanded.internal")

	dir := writeConfig(t, `
adapters:
  recent-logs:
    endpoint: "{{.SHIPSIGHT_TEST_ENDPOINT}}"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "http://expanded.internal", cfg.Adapter("recent-logs").Endpoint)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "engine: [not: a: map")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero iterations", func(c *Config) { c.Engine.MaxIterations = 0 }, "max_iterations"},
		{"negative deadline", func(c *Config) { c.Engine.OverallDeadline = -time.Second }, "overall_deadline"},
		{"task deadline over budget", func(c *Config) { c.Engine.TaskDeadline = 200 * time.Second }, "task_deadline"},
		{"threshold above one", func(c *Config) { c.Engine.AutoResolveThreshold = 1.5 }, "auto_resolve_threshold"},
		{"elimination above resolve", func(c *Config) { c.Engine.EliminationThreshold = 0.9 }, "elimination_threshold"},
		{"zero alpha", func(c *Config) { c.Scoring.Alpha = 0 }, "alpha"},
		{
			"bad adapter auth",
			func(c *Config) { c.Adapters = map[string]AdapterConfig{"x": {Auth: "kerberos"}} },
			"auth",
		},
		{
			"inverted backoff",
			func(c *Config) {
				c.Adapters = map[string]AdapterConfig{"x": {Backoff: BackoffConfig{BaseMs: 1000, MaxMs: 10}}}
			},
			"backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(context.Background(), t.TempDir())
			require.NoError(t, err)
			tt.mutate(cfg)

			err = validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestEnabledAdapters(t *testing.T) {
	cfg, err := load(context.Background(), t.TempDir())
	require.NoError(t, err)
	cfg.Adapters = map[string]AdapterConfig{
		"tracking-api": {},
		"rpa-scraper":  {Disabled: true},
	}

	got := cfg.EnabledAdapters([]string{"tracking-api", "rpa-scraper", "recent-logs"})
	assert.Equal(t, []string{"tracking-api", "recent-logs"}, got)
}
