package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClaimPending atomically claims a batch of payout jobs for dispatch.
// Uses FOR UPDATE SKIP LOCKED so the ticker and the notify listener can
// dispatch concurrently without double-sending.
func ClaimPending(ctx context.Context, pool *pgxpool.Pool, maxAttempts int) ([]Job, error) {
	rows, err := pool.Query(ctx, `
		UPDATE payout_jobs
		SET status = 'sending', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM payout_jobs
			WHERE status IN ('pending', 'failed') AND attempts < $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, competition_id, status, attempts, COALESCE(last_error, ''), created_at, updated_at`,
		maxAttempts, dispatchBatchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("claim payout jobs: %w", err)
	}
	defer rows.Close()

	var claimed []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.CompetitionID, &j.Status, &j.Attempts,
			&j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payout job: %w", err)
		}
		claimed = append(claimed, j)
	}
	return claimed, rows.Err()
}

// MarkDone marks a job delivered and clears the competition's pending flag.
func MarkDone(ctx context.Context, pool *pgxpool.Pool, job Job) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin payout done tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE payout_jobs SET status = 'done', updated_at = NOW()
		WHERE id = $1`, job.ID); err != nil {
		return fmt.Errorf("mark payout job %d done: %w", job.ID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE competitions SET payout_pending = false, updated_at = NOW()
		WHERE id = $1`, job.CompetitionID); err != nil {
		return fmt.Errorf("clear payout pending for competition %d: %w", job.CompetitionID, err)
	}
	return tx.Commit(ctx)
}

// MarkFailed records a delivery failure. The job stays retryable until the
// attempt cap; the competition stays FINALIZED either way.
func MarkFailed(ctx context.Context, pool *pgxpool.Pool, id int, reason string) error {
	_, err := pool.Exec(ctx, `
		UPDATE payout_jobs
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	return err
}

// Retry resets a failed job for another dispatch attempt (gwctl).
func Retry(ctx context.Context, pool *pgxpool.Pool, competitionID int) error {
	tag, err := pool.Exec(ctx, `
		UPDATE payout_jobs
		SET status = 'pending', attempts = 0, last_error = NULL, updated_at = NOW()
		WHERE competition_id = $1 AND status <> 'done'`, competitionID)
	if err != nil {
		return fmt.Errorf("retry payout for competition %d: %w", competitionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no retryable payout job for competition %d", competitionID)
	}
	return nil
}

// --------------------------------------------------------------------------
// Corrections
// --------------------------------------------------------------------------

// Correction records a post-finalization score revision. Payouts may
// already be irreversible, so the engine never re-finalizes or re-pays —
// corrections exist for administrative reconciliation.
type Correction struct {
	ID             int
	CompetitionID  int
	OldFingerprint string
	NewFingerprint string
	Note           string
	DetectedAt     time.Time
}

// RecordCorrection persists one post-finalization revision event.
func RecordCorrection(ctx context.Context, pool *pgxpool.Pool, competitionID int, oldFP, newFP, note string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO corrections (competition_id, old_fingerprint, new_fingerprint, note)
		VALUES ($1, $2, $3, $4)`,
		competitionID, oldFP, newFP, note)
	if err != nil {
		return fmt.Errorf("record correction for competition %d: %w", competitionID, err)
	}
	return nil
}

// ListCorrections returns recent correction records, newest first.
func ListCorrections(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pool.Query(ctx, `
		SELECT id, competition_id, old_fingerprint, new_fingerprint, note, detected_at
		FROM corrections ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var c Correction
		if err := rows.Scan(&c.ID, &c.CompetitionID, &c.OldFingerprint,
			&c.NewFingerprint, &c.Note, &c.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
