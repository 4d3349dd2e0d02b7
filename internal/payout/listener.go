package payout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StartListener opens a dedicated connection (not from the pool) and
// listens on the competition_finalized channel so payouts go out within
// seconds of finalization instead of waiting for the dispatch ticker.
// Reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func StartListener(ctx context.Context, dbURL string, pool *pgxpool.Pool, payer Payer, maxAttempts int, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, pool, payer, maxAttempts, logger)
		if ctx.Err() != nil {
			logger.Info("Finalization listener stopped (context cancelled)")
			return
		}

		logger.Error("Finalization listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection
// drops or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, pool *pgxpool.Pool, payer Payer, maxAttempts int, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+notifyChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", notifyChannel, err)
	}
	logger.Info("Finalization listener connected", "channel", notifyChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		logger.Info("Finalization event received", "competition_id", notification.Payload)

		// The payload is advisory; dispatch claims through the job table,
		// so a duplicate or garbled notify cannot double-send.
		sent, failed, err := DispatchBatch(ctx, pool, payer, maxAttempts, logger)
		if err != nil {
			logger.Warn("dispatch after finalization event failed", "error", err)
			continue
		}
		if sent+failed > 0 {
			logger.Info("dispatch after finalization event", "sent", sent, "failed", failed)
		}
	}
}
