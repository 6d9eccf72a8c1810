// ShipSight investigation server. Accepts shipment-tracking support tickets
// over HTTP, runs multi-agent root-cause investigations, and streams the
// evidence as it accumulates.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shipsight/shipsight/pkg/adapter"
	"github.com/shipsight/shipsight/pkg/api"
	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/decisiontree"
	"github.com/shipsight/shipsight/pkg/events"
	"github.com/shipsight/shipsight/pkg/journal"
	"github.com/shipsight/shipsight/pkg/llm"
	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/patterns"
	"github.com/shipsight/shipsight/pkg/scheduler"
	"github.com/shipsight/shipsight/pkg/supervisor"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. LLM client (optional; the engine degrades to pattern-only mode)
	var llmClient llm.Client = llm.Disabled{}
	if !cfg.LLM.Disabled {
		if apiKey := os.Getenv(cfg.LLM.APIKeyEnv); apiKey != "" {
			client, llmErr := llm.NewAnthropicClient(apiKey, cfg.LLM)
			if llmErr != nil {
				slog.Error("Failed to initialize LLM client", "error", llmErr)
				os.Exit(1)
			}
			llmClient = client
			slog.Info("LLM client initialized", "model", cfg.LLM.Model)
		} else {
			slog.Warn("LLM API key not set, identifier extraction falls back to regex",
				"env_var", cfg.LLM.APIKeyEnv)
		}
	}
	defer func() {
		if err := llmClient.Close(); err != nil {
			slog.Error("Error closing LLM client", "error", err)
		}
	}()

	// 3. Event journal (optional)
	var eventJournal *journal.Journal
	var recorder events.Recorder
	if cfg.Journal.Enabled {
		dsn := os.Getenv(cfg.Journal.DSNEnv)
		if dsn == "" {
			slog.Error("Journal enabled but DSN not set", "env_var", cfg.Journal.DSNEnv)
			os.Exit(1)
		}
		eventJournal, err = journal.Open(ctx, dsn, slog.Default())
		if err != nil {
			slog.Error("Failed to open event journal", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := eventJournal.Close(); err != nil {
				slog.Error("Error closing event journal", "error", err)
			}
		}()
		recorder = eventJournal
		slog.Info("Event journal connected")
	}

	// 4. Adapter registry and scheduler
	registry, err := adapter.NewBuiltinRegistry(cfg)
	if err != nil {
		slog.Error("Failed to build adapter registry", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(registry, *cfg.Engine, slog.Default())
	slog.Info("Adapters registered", "count", len(registry.Names()))

	// 5. Pattern library and decision trees
	library := patterns.Builtin()
	if cfg.PatternsFile != "" {
		library, err = patterns.LoadLibrary(cfg.PatternsFile)
		if err != nil {
			slog.Error("Failed to load pattern library", "path", cfg.PatternsFile, "error", err)
			os.Exit(1)
		}
		slog.Info("Pattern library loaded", "path", cfg.PatternsFile, "patterns", library.Len())
	}

	trees := map[models.Mode]*decisiontree.Tree{models.ModeOcean: decisiontree.BuiltinOcean()}
	if cfg.DecisionTreeDir != "" {
		trees, err = decisiontree.LoadDir(cfg.DecisionTreeDir)
		if err != nil {
			slog.Error("Failed to load decision trees", "dir", cfg.DecisionTreeDir, "error", err)
			os.Exit(1)
		}
		slog.Info("Decision trees loaded", "dir", cfg.DecisionTreeDir, "modes", len(trees))
	}

	// 6. Supervisor
	sup := supervisor.New(cfg, supervisor.Deps{
		Registry:  registry,
		Scheduler: sched,
		LLM:       llmClient,
		Library:   library,
		Trees:     trees,
		Recorder:  recorder,
	})

	// 7. HTTP server (non-blocking)
	apiServer := api.NewServer(cfg.Server, sup, eventJournal, slog.Default())
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: apiServer.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("ShipSight started successfully",
		"max_iterations", cfg.Engine.MaxIterations,
		"concurrent_tasks", cfg.Engine.ConcurrentTasks)

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop accepting work, then drain investigations
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Shutdown timeout exceeded, investigations aborted", "error", err)
	}

	slog.Info("Shutdown complete")
}
