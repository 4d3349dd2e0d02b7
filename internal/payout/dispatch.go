package payout

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/gameweek-engine/internal/standings"
)

// StartWorker runs a background loop that delivers claimed payout jobs.
// The ticker is the catch-up path behind the NOTIFY listener, so a missed
// notification only delays a payout by one interval. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func StartWorker(ctx context.Context, pool *pgxpool.Pool, payer Payer, maxAttempts int, logger *slog.Logger) {
	logger.Info("Payout dispatch worker started", "interval", dispatchInterval)
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, failed, err := DispatchBatch(ctx, pool, payer, maxAttempts, logger)
			if err != nil {
				logger.Error("payout dispatch error", "error", err)
			} else if sent+failed > 0 {
				logger.Info("payout dispatch batch", "sent", sent, "failed", failed)
			}
		case <-ctx.Done():
			logger.Info("Payout dispatch worker stopped")
			return
		}
	}
}

// DispatchBatch claims due jobs and hands each competition's final ranking
// to the wallet collaborator. One job's failure never blocks the rest.
func DispatchBatch(ctx context.Context, pool *pgxpool.Pool, payer Payer, maxAttempts int, logger *slog.Logger) (sent, failed int, err error) {
	claimed, err := ClaimPending(ctx, pool, maxAttempts)
	if err != nil {
		return 0, 0, err
	}

	for _, job := range claimed {
		ranking, rankErr := standings.Ranking(ctx, pool, job.CompetitionID)
		if rankErr != nil {
			logger.Warn("load ranking failed", "competition_id", job.CompetitionID, "error", rankErr)
			_ = MarkFailed(ctx, pool, job.ID, rankErr.Error())
			failed++
			continue
		}

		if payErr := payer.Payout(ctx, job.CompetitionID, ranking); payErr != nil {
			logger.Warn("payout failed", "competition_id", job.CompetitionID,
				"attempts", job.Attempts+1, "error", payErr)
			_ = MarkFailed(ctx, pool, job.ID, payErr.Error())
			failed++
			continue
		}

		if doneErr := MarkDone(ctx, pool, job); doneErr != nil {
			logger.Warn("mark payout done failed", "competition_id", job.CompetitionID, "error", doneErr)
			failed++
			continue
		}
		logger.Info("Payout delivered", "competition_id", job.CompetitionID, "entries", len(ranking))
		sent++
	}
	return sent, failed, nil
}
