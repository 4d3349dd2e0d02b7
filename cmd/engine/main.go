// Command engine is the gameweek lifecycle & live standings synchronization
// service.
//
// It runs the recurring cycle engine, the payout dispatch worker and
// LISTEN/NOTIFY consumer, maintenance tickers, the websocket fan-out hub,
// and the HTTP status/standings read API.
//
// Usage:
//
//	gameweek-engine
//	API_PORT=8080 gameweek-engine
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/pitchside/gameweek-engine/internal/api"
	"github.com/pitchside/gameweek-engine/internal/broadcast"
	"github.com/pitchside/gameweek-engine/internal/cache"
	"github.com/pitchside/gameweek-engine/internal/config"
	"github.com/pitchside/gameweek-engine/internal/db"
	"github.com/pitchside/gameweek-engine/internal/engine"
	"github.com/pitchside/gameweek-engine/internal/maintenance"
	"github.com/pitchside/gameweek-engine/internal/payout"
	"github.com/pitchside/gameweek-engine/internal/scoring"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration — missing credentials are fatal here, nowhere else.
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Scoring authority client — shared across all competition workers.
	source := scoring.NewClient(cfg.ScoringBaseURL, cfg.ScoringAPIKey, scoring.Options{
		RequestsPerMinute: cfg.ScoringPerMinute,
		MaxInflight:       cfg.ScoringMaxInflight,
		Timeout:           cfg.ScoringTimeout,
		LiveTTL:           cfg.LiveTTL,
		IdleTTL:           cfg.IdleTTL,
	}, logger)

	// Broadcast hub
	hub := broadcast.NewHub(logger)

	// Cycle engine
	eng := engine.New(pool.Pool, source, hub, engine.Config{
		Workers:            cfg.CycleWorkers,
		ClaimLimit:         cfg.CycleClaimLimit,
		LeaseDuration:      cfg.LeaseDuration,
		CompetitionTimeout: cfg.CompetitionTimeout,
		IntervalLive:       cfg.CycleIntervalLive,
		IntervalIdle:       cfg.CycleIntervalIdle,
		BatchMin:           cfg.BatchMin,
		BatchMax:           cfg.BatchMax,
		LatencyThreshold:   cfg.LatencyThreshold,
	}, logger)
	go eng.Run(ctx)

	// Payout delivery: dispatch worker + LISTEN/NOTIFY consumer.
	wallet := payout.NewWalletClient(cfg.WalletURL, logger)
	if wallet == nil {
		logger.Info("Wallet collaborator not configured, payouts will be logged only")
	}
	go payout.StartWorker(ctx, pool.Pool, wallet, cfg.PayoutMaxAttempts, logger)
	go payout.StartListener(ctx, cfg.DatabaseURL, pool.Pool, wallet, cfg.PayoutMaxAttempts, logger)

	// Maintenance tickers (stuck-job requeue, retention cleanup)
	go maintenance.Start(ctx, pool.Pool, maintenance.DefaultConfig(), logger)

	// Read API + websocket endpoint
	appCache := cache.New(true)
	router := api.NewRouter(pool.Pool, appCache, hub, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting gameweek engine API",
			"addr", addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
