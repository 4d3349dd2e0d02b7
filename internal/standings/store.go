package standings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListByCompetition returns a competition's entries ordered by join time.
func ListByCompetition(ctx context.Context, pool *pgxpool.Pool, competitionID int) ([]Entry, error) {
	return list(ctx, pool, "entries_by_competition", competitionID)
}

// Ranking returns a competition's entries ordered by current rank — the
// shape handed to the payout collaborator and the snapshot read path.
func Ranking(ctx context.Context, pool *pgxpool.Pool, competitionID int) ([]Entry, error) {
	return list(ctx, pool, "ranking_by_competition", competitionID)
}

func list(ctx context.Context, pool *pgxpool.Pool, stmt string, competitionID int) ([]Entry, error) {
	rows, err := pool.Query(ctx, stmt, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list entries for competition %d: %w", competitionID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.CompetitionID, &e.ParticipantID, &e.JoinedAt,
			&e.Score, &e.Rank, &e.PreviousRank,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BulkUpdate persists a batch of changed entries as one transaction with a
// single queued batch — all-or-nothing, so a partial failure never leaves
// some entries updated and others stale for the same pass.
func BulkUpdate(ctx context.Context, pool *pgxpool.Pool, changed []Entry) error {
	if len(changed) == 0 {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin entry update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range changed {
		batch.Queue(`
			UPDATE entries
			SET score = $2, rank = $3, previous_rank = $4, updated_at = NOW()
			WHERE id = $1`,
			e.ID, e.Score, e.Rank, e.PreviousRank)
	}

	br := tx.SendBatch(ctx, batch)
	for range changed {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("bulk entry update: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close entry batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit entry update tx: %w", err)
	}
	return nil
}
