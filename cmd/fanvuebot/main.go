// Package main contains the entrypoint for the Fanvue auto-responder.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rmarques/fanvuebot/internal/ai"
	"github.com/rmarques/fanvuebot/internal/bot"
	"github.com/rmarques/fanvuebot/internal/config"
	"github.com/rmarques/fanvuebot/internal/database"
	"github.com/rmarques/fanvuebot/internal/fanvue"
	"github.com/rmarques/fanvuebot/internal/logger"
	"github.com/rmarques/fanvuebot/internal/monitor"
	"github.com/rmarques/fanvuebot/internal/state"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// account store, state store, AI client, orchestrator), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "", "Path to configuration file (default ./config.yaml)")
	pollInterval := flag.Duration("poll-interval", 0, "Override interval between message polls")
	refreshInterval := flag.Duration("refresh-interval", 0, "Override interval between account list refreshes")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment as-is")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}
	if *pollInterval > 0 {
		cfg.Monitor.PollInterval = *pollInterval
	}
	if *refreshInterval > 0 {
		cfg.Monitor.RefreshInterval = *refreshInterval
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to account database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db) // Ensure DB is closed on function exit
	accountStore := database.NewStore(db, log)

	stateStore, err := state.Load(cfg.State.Path, log)
	if err != nil {
		log.Error("Failed to load message state", "path", cfg.State.Path, "error", err)
		return 1
	}

	generator, err := ai.NewClient(ctx, cfg.AI, log)
	if err != nil {
		log.Error("Failed to initialize AI client", "error", err)
		return 1
	}

	// Each monitor gets a platform client bound to its account's API key;
	// credentials are never shared across accounts.
	newMonitor := func(account database.Account) bot.Runner {
		client := fanvue.NewClient(
			cfg.Fanvue.BaseURL,
			cfg.Fanvue.APIVersion,
			account.APIKey,
			cfg.Fanvue.MessageLimit,
			cfg.Fanvue.Timeout,
			log,
		)
		return monitor.New(account, client, generator, stateStore,
			cfg.Monitor.PollInterval, cfg.Monitor.ErrorBackoff, log)
	}

	orchestrator := bot.New(log, accountStore, stateStore, newMonitor, cfg.Monitor.RefreshInterval)

	log.Info("Starting responder...")
	runErr := orchestrator.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Responder run loop finished. Initiating shutdown...")

	// Check if the error is significant (not just context cancellation)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Responder stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Responder stopped gracefully.")
	return 0
}
