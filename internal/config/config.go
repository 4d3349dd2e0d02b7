// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/engine and cmd/gwctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Scoring authority
	ScoringBaseURL     string
	ScoringAPIKey      string
	ScoringPerMinute   int           // rate limit toward the authority
	ScoringMaxInflight int64         // bound on concurrent outbound requests
	ScoringTimeout     time.Duration // per-request timeout
	LiveTTL            time.Duration // snapshot cache TTL while fixtures run
	IdleTTL            time.Duration // snapshot cache TTL otherwise

	// Cycle scheduling
	CycleIntervalLive  time.Duration
	CycleIntervalIdle  time.Duration
	CycleWorkers       int
	CycleClaimLimit    int
	LeaseDuration      time.Duration
	CompetitionTimeout time.Duration

	// Entry batch sizing
	BatchMin         int
	BatchMax         int
	LatencyThreshold time.Duration // per-entry latency above which batches shrink

	// Finalization
	DefaultStabilityWindow time.Duration
	PayoutMaxAttempts      int

	// Wallet collaborator
	WalletURL string

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production

	// CORS
	CORSAllowOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// A missing database URL or scoring-authority credential is fatal: the
// engine cannot run a single cycle without them.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	scoringURL := envOr("SCORING_BASE_URL", "")
	if scoringURL == "" {
		return nil, fmt.Errorf("SCORING_BASE_URL must be set")
	}
	scoringKey := envOr("SCORING_API_KEY", "")
	if scoringKey == "" {
		return nil, fmt.Errorf("SCORING_API_KEY must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		ScoringBaseURL:     strings.TrimRight(scoringURL, "/"),
		ScoringAPIKey:      scoringKey,
		ScoringPerMinute:   envInt("SCORING_REQUESTS_PER_MINUTE", 60),
		ScoringMaxInflight: int64(envInt("SCORING_MAX_INFLIGHT", 10)),
		ScoringTimeout:     envDuration("SCORING_TIMEOUT", 10*time.Second),
		LiveTTL:            envDuration("SNAPSHOT_LIVE_TTL", 30*time.Second),
		IdleTTL:            envDuration("SNAPSHOT_IDLE_TTL", 10*time.Minute),

		CycleIntervalLive:  envDuration("CYCLE_INTERVAL_LIVE", 90*time.Second),
		CycleIntervalIdle:  envDuration("CYCLE_INTERVAL_IDLE", time.Hour),
		CycleWorkers:       envInt("CYCLE_WORKERS", 4),
		CycleClaimLimit:    envInt("CYCLE_CLAIM_LIMIT", 200),
		LeaseDuration:      envDuration("CYCLE_LEASE", 5*time.Minute),
		CompetitionTimeout: envDuration("COMPETITION_TIMEOUT", 2*time.Minute),

		BatchMin:         envInt("ENTRY_BATCH_MIN", 10),
		BatchMax:         envInt("ENTRY_BATCH_MAX", 100),
		LatencyThreshold: envDuration("ENTRY_LATENCY_THRESHOLD", 25*time.Millisecond),

		DefaultStabilityWindow: envDuration("STABILITY_WINDOW", 60*time.Minute),
		PayoutMaxAttempts:      envInt("PAYOUT_MAX_ATTEMPTS", 10),

		WalletURL: envOr("WALLET_URL", ""),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
