package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/gameweek-engine/internal/lifecycle"
	"github.com/pitchside/gameweek-engine/internal/scoring"
	"github.com/pitchside/gameweek-engine/internal/stability"
	"github.com/pitchside/gameweek-engine/internal/standings"
)

// ScoreSource is the scoring authority surface the cycle consumes.
type ScoreSource interface {
	FetchFixtures(ctx context.Context, period int) ([]scoring.Fixture, error)
	FetchLiveScores(ctx context.Context, period int) (*scoring.Snapshot, error)
}

// Broadcaster fans standings changes out to subscribers.
type Broadcaster interface {
	PublishDiff(competitionID int, changed []standings.Entry)
	PublishGlobal(competitionID, changedCount int)
}

// Config tunes the cycle engine.
type Config struct {
	Workers            int
	ClaimLimit         int
	LeaseDuration      time.Duration
	CompetitionTimeout time.Duration
	IntervalLive       time.Duration
	IntervalIdle       time.Duration
	BatchMin           int
	BatchMax           int
	LatencyThreshold   time.Duration
}

// Engine owns the recurring synchronization cycle.
type Engine struct {
	store  Store
	source ScoreSource
	hub    Broadcaster
	cfg    Config
	sizer  *Sizer
	logger *slog.Logger
}

// New creates a cycle engine backed by the pgx stores.
func New(pool *pgxpool.Pool, source ScoreSource, hub Broadcaster, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ClaimLimit < 1 {
		cfg.ClaimLimit = defaultClaimLimit
	}
	return &Engine{
		store:  pgxStore{pool: pool},
		source: source,
		hub:    hub,
		cfg:    cfg,
		sizer:  NewSizer(cfg.BatchMin, cfg.BatchMax, cfg.LatencyThreshold),
		logger: logger,
	}
}

// Run drives cycles until ctx is cancelled. The tick interval follows
// liveness: short while any tracked period has fixtures still running,
// backed off to the idle interval otherwise. Intended to be called with `go`.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Cycle engine started",
		"interval_live", e.cfg.IntervalLive,
		"interval_idle", e.cfg.IntervalIdle,
		"workers", e.cfg.Workers)

	interval := e.cfg.IntervalLive
	timer := time.NewTimer(0) // first cycle immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Cycle engine stopped")
			return
		case <-timer.C:
			result := e.RunCycle(ctx, time.Now())
			e.logger.Info("Cycle complete", "summary", result.Summary())
			for _, msg := range result.Errors {
				e.logger.Error("cycle error", "error", msg)
			}

			if result.AnyLive {
				interval = e.cfg.IntervalLive
			} else {
				interval = e.cfg.IntervalIdle
			}
			timer.Reset(interval)
		}
	}
}

// RunCycle claims due competitions and processes them with a bounded
// worker pool. Per-competition failures are collected, never propagated.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) CycleResult {
	start := time.Now()
	var result CycleResult

	claimed, err := e.store.ClaimDue(ctx, e.cfg.LeaseDuration, e.cfg.ClaimLimit)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		return result
	}
	result.Claimed = len(claimed)
	if len(claimed) == 0 {
		result.Duration = time.Since(start)
		return result
	}

	workers := e.cfg.Workers
	if workers > len(claimed) {
		workers = len(claimed)
	}

	ch := make(chan lifecycle.Competition, len(claimed))
	for _, c := range claimed {
		ch <- c
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for comp := range ch {
				outcome := e.processCompetition(ctx, &comp, now)

				mu.Lock()
				result.Processed++
				if outcome.transitioned {
					result.Transitions++
				}
				if outcome.finalized {
					result.Finalized++
				}
				if outcome.corrected {
					result.Corrections++
				}
				if outcome.live {
					result.AnyLive = true
				}
				result.Broadcast += outcome.broadcast
				if outcome.err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("competition %d: %s", comp.ID, outcome.err))
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	result.Duration = time.Since(start)
	return result
}

// outcome is what one competition's pass reports back to the cycle.
type outcome struct {
	transitioned bool
	finalized    bool
	corrected    bool
	live         bool
	broadcast    int
	err          error
}

// processCompetition runs one competition's full pass: fixtures, stability,
// standings, lifecycle. Bounded by the per-competition timeout so a hung
// external call abandons this competition's cycle without touching others;
// whatever was persisted stands and the rest resumes next tick.
func (e *Engine) processCompetition(ctx context.Context, comp *lifecycle.Competition, now time.Time) outcome {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CompetitionTimeout)
	defer cancel()
	defer func() {
		if err := e.store.ReleaseClaim(context.WithoutCancel(ctx), comp.ID); err != nil {
			e.logger.Warn("release claim failed", "competition_id", comp.ID, "error", err)
		}
	}()

	fixtures, err := e.source.FetchFixtures(ctx, comp.PeriodID)
	if err != nil {
		// Transient-source: no information this cycle, no state change.
		return outcome{err: fmt.Errorf("fetch fixtures: %w", err)}
	}

	o := outcome{live: !scoring.AllTerminal(fixtures)}

	if comp.Finalized() {
		o.live = false
		corrected, err := e.watchForRevision(ctx, comp, now)
		o.corrected = corrected
		o.err = err
		return o
	}

	// Live scores matter once play has started; before the entry deadline
	// there is nothing to rank or fingerprint.
	var (
		snap   *scoring.Snapshot
		stable bool
	)
	if comp.State != lifecycle.StateOpenForEntry {
		snap, err = e.source.FetchLiveScores(ctx, comp.PeriodID)
		if err != nil {
			// No snapshot is "no information", never "scores are zero".
			// Fixture-driven transitions can still proceed; stability
			// cannot advance without a fingerprint.
			e.logger.Warn("fetch live scores failed", "competition_id", comp.ID, "error", err)
			snap = nil
		}
	}

	if snap != nil {
		stable, err = e.trackStability(ctx, comp, snap, now)
		if err != nil {
			return outcome{err: err}
		}

		n, err := e.syncStandings(ctx, comp, snap)
		o.broadcast = n
		if err != nil {
			// Standings persistence failed mid-pass; whatever committed
			// stands, the rest retries next cycle. Do not advance into
			// finalization on the back of a partial write.
			o.err = err
			return o
		}
	}

	decision := lifecycle.Advance(comp, fixtures, stable, now)
	if !decision.Transitioned(comp.State) {
		return o
	}
	o.transitioned = true

	if decision.Finalize {
		err := e.store.Finalize(ctx, comp.ID)
		switch {
		case errors.Is(err, lifecycle.ErrFinalizeGuard):
			// Lost the race to a concurrent cycle; the winner fired the
			// payout enqueue, this side does nothing.
			e.logger.Info("finalize guard lost", "competition_id", comp.ID)
		case err != nil:
			o.err = fmt.Errorf("finalize: %w", err)
		default:
			o.finalized = true
			e.logger.Info("Competition finalized",
				"competition_id", comp.ID, "period_id", comp.PeriodID,
				"reason", decision.Reason)
		}
		return o
	}

	if err := e.store.Apply(ctx, comp, decision, now); err != nil {
		o.err = err
		return o
	}
	e.logger.Info("Lifecycle transition",
		"competition_id", comp.ID,
		"from", comp.State, "to", decision.Next, "reason", decision.Reason)
	return o
}

// trackStability fingerprints the snapshot and persists the updated window
// anchor. The stability decision reads persisted fields, never the cache.
func (e *Engine) trackStability(ctx context.Context, comp *lifecycle.Competition, snap *scoring.Snapshot, now time.Time) (bool, error) {
	fp := stability.Fingerprint(snap)

	tr := stability.Tracking{Fingerprint: comp.ScoreFingerprint}
	if comp.LastStabilityCheckAt != nil {
		tr.LastCheckAt = *comp.LastStabilityCheckAt
	}

	next, stable := stability.Observe(tr, fp, comp.StabilityWindow, now)
	if next != tr {
		if err := e.store.UpdateStability(ctx, comp.ID, next.Fingerprint, next.LastCheckAt); err != nil {
			return false, err
		}
		comp.ScoreFingerprint = next.Fingerprint
		comp.LastStabilityCheckAt = &next.LastCheckAt
	}
	return stable, nil
}

// syncStandings recomputes ranks and persists changed entries in adaptive
// batches, each batch its own all-or-nothing transaction. Diffs broadcast
// only after the batch that contains them has committed.
func (e *Engine) syncStandings(ctx context.Context, comp *lifecycle.Competition, snap *scoring.Snapshot) (int, error) {
	entries, err := e.store.ListEntries(ctx, comp.ID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	_, changed := standings.Recompute(entries, snap)
	if len(changed) == 0 {
		return 0, nil
	}

	written := 0
	for written < len(changed) {
		size := e.sizer.Next()
		end := written + size
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[written:end]

		batchStart := time.Now()
		if err := e.store.UpdateEntries(ctx, batch); err != nil {
			// Broadcast what committed; the remainder retries next cycle.
			e.publish(comp.ID, changed[:written])
			return written, fmt.Errorf("bulk update entries: %w", err)
		}
		e.sizer.Observe(time.Since(batchStart) / time.Duration(len(batch)))
		written = end
	}

	e.publish(comp.ID, changed)
	return written, nil
}

func (e *Engine) publish(competitionID int, changed []standings.Entry) {
	if len(changed) == 0 {
		return
	}
	e.hub.PublishDiff(competitionID, changed)
	e.hub.PublishGlobal(competitionID, len(changed))
}

// watchForRevision compares the latest fingerprint against the one the
// competition finalized with. A difference is a post-finalization revision:
// the payout may already be irreversible, so this never re-finalizes and
// never re-fires payout — it records a correction for reconciliation.
func (e *Engine) watchForRevision(ctx context.Context, comp *lifecycle.Competition, now time.Time) (bool, error) {
	snap, err := e.source.FetchLiveScores(ctx, comp.PeriodID)
	if err != nil {
		return false, fmt.Errorf("fetch live scores for revision watch: %w", err)
	}

	fp := stability.Fingerprint(snap)
	if fp == comp.ScoreFingerprint || comp.ScoreFingerprint == "" {
		return false, nil
	}

	e.logger.Warn("Post-finalization score revision detected",
		"competition_id", comp.ID, "period_id", comp.PeriodID)

	if err := e.store.RecordCorrection(ctx, comp.ID, comp.ScoreFingerprint, fp,
		"score fingerprint changed after finalization"); err != nil {
		return false, err
	}
	// Store the revised fingerprint so the same revision is recorded once.
	if err := e.store.UpdateStability(ctx, comp.ID, fp, now); err != nil {
		return true, err
	}
	return true, nil
}
