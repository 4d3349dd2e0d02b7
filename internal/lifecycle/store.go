package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrFinalizeGuard means another cycle won the race to finalize: the
// conditional update on finalized_at matched zero rows. The loser performs
// no payout enqueue.
var ErrFinalizeGuard = errors.New("competition already finalized")

// ErrNotFound means the competition does not exist.
var ErrNotFound = errors.New("competition not found")

// GetByID returns a single competition.
func GetByID(ctx context.Context, pool *pgxpool.Pool, id int) (*Competition, error) {
	c, err := scanCompetition(pool.QueryRow(ctx, "competition_by_id", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get competition %d: %w", id, err)
	}
	return c, nil
}

// List returns competitions ordered by id, for the CLI and status API.
func List(ctx context.Context, pool *pgxpool.Pool, limit int) ([]Competition, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := pool.Query(ctx, "list_competitions", limit)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	defer rows.Close()

	var out []Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competition: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ClaimDue atomically claims a batch of competitions for one cycle. The
// claim is a lease: claimed_until makes "who owns this cycle" an explicit,
// inspectable fact, and an expired lease from a crashed worker is simply
// re-claimable. FOR UPDATE SKIP LOCKED keeps concurrent engine instances
// from serializing behind each other. Recently finalized competitions stay
// in rotation for a revision watch window so late score changes surface as
// correction records.
func ClaimDue(ctx context.Context, pool *pgxpool.Pool, lease time.Duration, limit int) ([]Competition, error) {
	rows, err := pool.Query(ctx, `
		UPDATE competitions
		SET claimed_until = NOW() + make_interval(secs => $1), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM competitions
			WHERE (lifecycle_state <> 'FINALIZED'
			       OR finalized_at > NOW() - INTERVAL '48 hours')
			  AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY updated_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, period_id, lifecycle_state, stability_window_secs,
		          soft_finalized_at, finalized_at, last_stability_check_at,
		          score_fingerprint, payout_pending`,
		lease.Seconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due competitions: %w", err)
	}
	defer rows.Close()

	var claimed []Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed competition: %w", err)
		}
		claimed = append(claimed, *c)
	}
	return claimed, rows.Err()
}

// ReleaseClaim returns a competition's lease early at the end of its cycle.
func ReleaseClaim(ctx context.Context, pool *pgxpool.Pool, id int) error {
	_, err := pool.Exec(ctx, "release_claim", id)
	return err
}

// UpdateStability persists the fingerprint and window anchor. Finalization
// decisions depend on these persisted fields, never on cache contents.
func UpdateStability(ctx context.Context, pool *pgxpool.Pool, id int, fingerprint string, lastCheckAt time.Time) error {
	_, err := pool.Exec(ctx, "update_stability", id, fingerprint, lastCheckAt)
	if err != nil {
		return fmt.Errorf("update stability for competition %d: %w", id, err)
	}
	return nil
}

// Apply persists a non-finalizing decision. Finalizing decisions go through
// Finalize instead, which carries the conditional guard and payout enqueue.
func Apply(ctx context.Context, pool *pgxpool.Pool, c *Competition, d Decision, now time.Time) error {
	if d.Finalize {
		return fmt.Errorf("finalizing decision must go through Finalize")
	}
	if !d.Transitioned(c.State) && !d.SetSoftFinalized && !d.ClearSoftFinalized {
		return nil
	}

	var soft *time.Time
	switch {
	case d.SetSoftFinalized:
		soft = &now
	case d.ClearSoftFinalized:
		soft = nil
	default:
		soft = c.SoftFinalizedAt
	}

	if d.ResetStability {
		_, err := pool.Exec(ctx, `
			UPDATE competitions
			SET lifecycle_state = $2, soft_finalized_at = $3,
			    score_fingerprint = '', last_stability_check_at = NULL,
			    updated_at = NOW()
			WHERE id = $1 AND finalized_at IS NULL`,
			c.ID, string(d.Next), soft)
		if err != nil {
			return fmt.Errorf("apply transition for competition %d: %w", c.ID, err)
		}
		return nil
	}

	_, err := pool.Exec(ctx, `
		UPDATE competitions
		SET lifecycle_state = $2, soft_finalized_at = $3, updated_at = NOW()
		WHERE id = $1 AND finalized_at IS NULL`,
		c.ID, string(d.Next), soft)
	if err != nil {
		return fmt.Errorf("apply transition for competition %d: %w", c.ID, err)
	}
	return nil
}

// Finalize moves a competition into FINALIZED exactly once. The guard and
// the payout job enqueue commit in the same transaction, so two racing
// cycles cannot both fire the payout: the loser gets ErrFinalizeGuard and
// does nothing. pg_notify wakes the payout dispatcher immediately; the
// dispatch ticker is the catch-up path if the notify is missed.
func Finalize(ctx context.Context, pool *pgxpool.Pool, id int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE competitions
		SET lifecycle_state = 'FINALIZED', finalized_at = NOW(),
		    payout_pending = true, updated_at = NOW()
		WHERE id = $1 AND finalized_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("finalize competition %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFinalizeGuard
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payout_jobs (competition_id, status)
		VALUES ($1, 'pending')
		ON CONFLICT (competition_id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("enqueue payout job for competition %d: %w", id, err)
	}

	_, err = tx.Exec(ctx, `SELECT pg_notify('competition_finalized', $1::text)`, id)
	if err != nil {
		return fmt.Errorf("notify finalized competition %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize tx: %w", err)
	}
	return nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompetition(row rowScanner) (*Competition, error) {
	var (
		c          Competition
		state      string
		windowSecs int64
	)
	if err := row.Scan(
		&c.ID, &c.PeriodID, &state, &windowSecs,
		&c.SoftFinalizedAt, &c.FinalizedAt, &c.LastStabilityCheckAt,
		&c.ScoreFingerprint, &c.PayoutPending,
	); err != nil {
		return nil, err
	}
	c.State = State(state)
	c.StabilityWindow = time.Duration(windowSecs) * time.Second
	return &c, nil
}
