package engine

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/gameweek-engine/internal/lifecycle"
	"github.com/pitchside/gameweek-engine/internal/payout"
	"github.com/pitchside/gameweek-engine/internal/standings"
)

// Store is the persistence surface one cycle drives, narrowed to exactly
// what a competition pass needs. The pgx-backed implementation delegates to
// the lifecycle, standings, and payout stores.
type Store interface {
	ClaimDue(ctx context.Context, lease time.Duration, limit int) ([]lifecycle.Competition, error)
	ReleaseClaim(ctx context.Context, id int) error
	UpdateStability(ctx context.Context, id int, fingerprint string, lastCheckAt time.Time) error
	Apply(ctx context.Context, c *lifecycle.Competition, d lifecycle.Decision, now time.Time) error
	Finalize(ctx context.Context, id int) error
	ListEntries(ctx context.Context, competitionID int) ([]standings.Entry, error)
	UpdateEntries(ctx context.Context, changed []standings.Entry) error
	RecordCorrection(ctx context.Context, competitionID int, oldFingerprint, newFingerprint, note string) error
}

type pgxStore struct {
	pool *pgxpool.Pool
}

func (s pgxStore) ClaimDue(ctx context.Context, lease time.Duration, limit int) ([]lifecycle.Competition, error) {
	return lifecycle.ClaimDue(ctx, s.pool, lease, limit)
}

func (s pgxStore) ReleaseClaim(ctx context.Context, id int) error {
	return lifecycle.ReleaseClaim(ctx, s.pool, id)
}

func (s pgxStore) UpdateStability(ctx context.Context, id int, fingerprint string, lastCheckAt time.Time) error {
	return lifecycle.UpdateStability(ctx, s.pool, id, fingerprint, lastCheckAt)
}

func (s pgxStore) Apply(ctx context.Context, c *lifecycle.Competition, d lifecycle.Decision, now time.Time) error {
	return lifecycle.Apply(ctx, s.pool, c, d, now)
}

func (s pgxStore) Finalize(ctx context.Context, id int) error {
	return lifecycle.Finalize(ctx, s.pool, id)
}

func (s pgxStore) ListEntries(ctx context.Context, competitionID int) ([]standings.Entry, error) {
	return standings.ListByCompetition(ctx, s.pool, competitionID)
}

func (s pgxStore) UpdateEntries(ctx context.Context, changed []standings.Entry) error {
	return standings.BulkUpdate(ctx, s.pool, changed)
}

func (s pgxStore) RecordCorrection(ctx context.Context, competitionID int, oldFingerprint, newFingerprint, note string) error {
	return payout.RecordCorrection(ctx, s.pool, competitionID, oldFingerprint, newFingerprint, note)
}
