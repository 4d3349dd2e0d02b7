// Package maintenance runs periodic background tasks as Go tickers.
// All scheduled work is driven from Go since the engine is already a
// persistent, long-running service (required for LISTEN/NOTIFY).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	RequeueInterval time.Duration // Re-queue payout jobs stuck in 'sending'
	CleanupInterval time.Duration // Purge delivered jobs + release dead leases
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RequeueInterval: 10 * time.Minute,
		CleanupInterval: 30 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, pool *pgxpool.Pool, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"requeue", cfg.RequeueInterval,
		"cleanup", cfg.CleanupInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.RequeueInterval > 0 {
		t := time.NewTicker(cfg.RequeueInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { requeueStuck(ctx, pool, logger) })
	}

	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { cleanup(ctx, pool, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// requeueStuck returns payout jobs abandoned mid-dispatch (worker crashed
// between claim and mark) to the pending queue.
func requeueStuck(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	tag, err := pool.Exec(ctx, `
		UPDATE payout_jobs
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'sending'
		  AND updated_at < NOW() - INTERVAL '10 minutes'`)
	if err != nil {
		logger.Warn("Requeue: failed to reset stuck payout jobs", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Requeue: reset stuck payout jobs", "count", tag.RowsAffected())
	}
}

// cleanup purges delivered payout jobs past retention and clears expired
// cycle leases so claim state stays inspectable.
func cleanup(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM payout_jobs
		WHERE status = 'done'
		  AND updated_at < NOW() - INTERVAL '30 days'`)
	if err != nil {
		logger.Warn("Cleanup: failed to purge delivered payout jobs", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Cleanup: purged delivered payout jobs", "count", tag.RowsAffected())
	}

	tag, err = pool.Exec(ctx, `
		UPDATE competitions
		SET claimed_until = NULL
		WHERE claimed_until IS NOT NULL AND claimed_until < NOW()`)
	if err != nil {
		logger.Warn("Cleanup: failed to clear expired leases", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Cleanup: cleared expired leases", "count", tag.RowsAffected())
	}
}
