// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/gameweek-engine/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the engine's hot paths
// use. Prepared statements eliminate parse overhead on every cycle.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Competitions
		"competition_by_id": `
			SELECT id, period_id, lifecycle_state, stability_window_secs,
			       soft_finalized_at, finalized_at, last_stability_check_at,
			       score_fingerprint, payout_pending
			FROM competitions WHERE id = $1`,
		"list_competitions": `
			SELECT id, period_id, lifecycle_state, stability_window_secs,
			       soft_finalized_at, finalized_at, last_stability_check_at,
			       score_fingerprint, payout_pending
			FROM competitions ORDER BY id LIMIT $1`,
		"update_stability": `
			UPDATE competitions
			SET score_fingerprint = $2, last_stability_check_at = $3, updated_at = NOW()
			WHERE id = $1`,
		"release_claim": `
			UPDATE competitions SET claimed_until = NULL, updated_at = NOW()
			WHERE id = $1`,

		// Entries
		"entries_by_competition": `
			SELECT id, competition_id, participant_id, joined_at, score, rank, previous_rank
			FROM entries WHERE competition_id = $1
			ORDER BY joined_at, id`,
		"ranking_by_competition": `
			SELECT id, competition_id, participant_id, joined_at, score, rank, previous_rank
			FROM entries WHERE competition_id = $1
			ORDER BY rank`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
