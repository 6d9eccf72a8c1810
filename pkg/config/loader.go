package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single YAML file read from the config directory.
const configFileName = "shipsight.yaml"

// Initialize loads, merges, and validates configuration and returns it ready
// for use. A missing config file is not an error: the built-in defaults
// describe a fully working single-process engine.
//
// Steps performed:
//  1. Load shipsight.yaml from configDir (if present)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user config over built-in defaults
//  5. Apply per-adapter defaults
//  6. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized",
		"adapters", len(cfg.Adapters),
		"max_iterations", cfg.Engine.MaxIterations,
		"overall_deadline", cfg.Engine.OverallDeadline)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	cfg := &Config{
		configDir: configDir,
		Engine:    DefaultEngineConfig(),
		Scoring:   DefaultScoringConfig(),
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Journal:   &JournalConfig{},
		Adapters:  make(map[string]AdapterConfig),
	}

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No config file found, using built-in defaults", "path", path)
			return cfg, nil
		}
		return nil, NewLoadError(configFileName, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, NewLoadError(configFileName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// User-provided values override defaults; unset values keep defaults.
	if user.Engine != nil {
		if err := mergo.Merge(cfg.Engine, user.Engine, mergo.WithOverride); err != nil {
			return nil, NewLoadError(configFileName, err)
		}
	}
	if user.Scoring != nil {
		if err := mergo.Merge(cfg.Scoring, user.Scoring, mergo.WithOverride); err != nil {
			return nil, NewLoadError(configFileName, err)
		}
	}
	if user.Server != nil {
		if err := mergo.Merge(cfg.Server, user.Server, mergo.WithOverride); err != nil {
			return nil, NewLoadError(configFileName, err)
		}
	}
	if user.LLM != nil {
		if err := mergo.Merge(cfg.LLM, user.LLM, mergo.WithOverride); err != nil {
			return nil, NewLoadError(configFileName, err)
		}
	}
	if user.Journal != nil {
		cfg.Journal = user.Journal
	}
	cfg.PatternsFile = user.PatternsFile
	cfg.DecisionTreeDir = user.DecisionTreeDir

	for name, ac := range user.Adapters {
		cfg.Adapters[name] = defaultAdapterConfig(ac)
	}

	return cfg, nil
}
