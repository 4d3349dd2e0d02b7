// Command gwctl is the gameweek engine operations CLI.
//
// Usage:
//
//	gwctl cycle
//	gwctl competitions list
//	gwctl competitions show --id 42
//	gwctl corrections list
//	gwctl payouts retry --id 42
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pitchside/gameweek-engine/internal/config"
	"github.com/pitchside/gameweek-engine/internal/db"
	"github.com/pitchside/gameweek-engine/internal/engine"
	"github.com/pitchside/gameweek-engine/internal/lifecycle"
	"github.com/pitchside/gameweek-engine/internal/payout"
	"github.com/pitchside/gameweek-engine/internal/scoring"
	"github.com/pitchside/gameweek-engine/internal/standings"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "gwctl",
		Short: "Gameweek engine operations CLI",
	}

	root.AddCommand(cycleCmd())
	root.AddCommand(competitionsCmd())
	root.AddCommand(correctionsCmd())
	root.AddCommand(payoutsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// cycle command
// --------------------------------------------------------------------------

func cycleCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run a single synchronization cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				source := scoring.NewClient(cfg.ScoringBaseURL, cfg.ScoringAPIKey, scoring.Options{
					RequestsPerMinute: cfg.ScoringPerMinute,
					MaxInflight:       cfg.ScoringMaxInflight,
					Timeout:           cfg.ScoringTimeout,
					LiveTTL:           cfg.LiveTTL,
					IdleTTL:           cfg.IdleTTL,
				}, logger)

				eng := engine.New(pool.Pool, source, noopBroadcaster{}, engine.Config{
					Workers:            workers,
					ClaimLimit:         cfg.CycleClaimLimit,
					LeaseDuration:      cfg.LeaseDuration,
					CompetitionTimeout: cfg.CompetitionTimeout,
					BatchMin:           cfg.BatchMin,
					BatchMax:           cfg.BatchMax,
					LatencyThreshold:   cfg.LatencyThreshold,
				}, logger)

				start := time.Now()
				result := eng.RunCycle(ctx, time.Now())
				logger.Info("Cycle finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("cycle error", "error", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "Concurrent worker count")
	return cmd
}

// noopBroadcaster drops diffs — one-shot CLI cycles have no subscribers.
type noopBroadcaster struct{}

func (noopBroadcaster) PublishDiff(int, []standings.Entry) {}
func (noopBroadcaster) PublishGlobal(int, int)             {}

// --------------------------------------------------------------------------
// competitions command
// --------------------------------------------------------------------------

func competitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "competitions",
		Short: "Inspect competition lifecycle state",
	}
	cmd.AddCommand(competitionsListCmd())
	cmd.AddCommand(competitionsShowCmd())
	return cmd
}

func competitionsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List competitions and their lifecycle states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				comps, err := lifecycle.List(ctx, pool.Pool, limit)
				if err != nil {
					return err
				}
				for _, c := range comps {
					fmt.Printf("%-6d period=%-4d %-20s window=%s payout_pending=%v\n",
						c.ID, c.PeriodID, c.State, c.StabilityWindow, c.PayoutPending)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum competitions to list")
	return cmd
}

func competitionsShowCmd() *cobra.Command {
	var id int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one competition's full lifecycle record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				c, err := lifecycle.GetByID(ctx, pool.Pool, id)
				if err != nil {
					return err
				}
				fmt.Printf("id:                  %d\n", c.ID)
				fmt.Printf("period:              %d\n", c.PeriodID)
				fmt.Printf("state:               %s\n", c.State)
				fmt.Printf("stability window:    %s\n", c.StabilityWindow)
				fmt.Printf("soft finalized at:   %s\n", formatTime(c.SoftFinalizedAt))
				fmt.Printf("finalized at:        %s\n", formatTime(c.FinalizedAt))
				fmt.Printf("last stability check: %s\n", formatTime(c.LastStabilityCheckAt))
				fmt.Printf("score fingerprint:   %s\n", c.ScoreFingerprint)
				fmt.Printf("payout pending:      %v\n", c.PayoutPending)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&id, "id", 0, "Competition ID")
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

// --------------------------------------------------------------------------
// corrections command
// --------------------------------------------------------------------------

func correctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Inspect post-finalization correction records",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent correction records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				corrections, err := payout.ListCorrections(ctx, pool.Pool, limit)
				if err != nil {
					return err
				}
				if len(corrections) == 0 {
					fmt.Println("no corrections recorded")
					return nil
				}
				for _, c := range corrections {
					fmt.Printf("%-6d competition=%-6d %s %s -> %s %s\n",
						c.ID, c.CompetitionID,
						c.DetectedAt.Format(time.RFC3339),
						short(c.OldFingerprint), short(c.NewFingerprint), c.Note)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum corrections to list")
	cmd.AddCommand(list)
	return cmd
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// --------------------------------------------------------------------------
// payouts command
// --------------------------------------------------------------------------

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Manage payout delivery jobs",
	}

	var id int
	retry := &cobra.Command{
		Use:   "retry",
		Short: "Reset a failed payout job for another delivery attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id is required")
			}
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				if err := payout.Retry(ctx, pool.Pool, id); err != nil {
					return err
				}
				logger.Info("Payout job reset", "competition_id", id)
				return nil
			})
		},
	}
	retry.Flags().IntVar(&id, "id", 0, "Competition ID")
	cmd.AddCommand(retry)
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading, DB connection, and context cancellation.
func run(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
