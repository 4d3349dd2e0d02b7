// Package engine drives the gameweek synchronization cycle: it claims due
// competitions, pulls fixture and live score data through the shared
// scoring client, advances each competition's lifecycle, recomputes
// standings, and fans diffs out to subscribers.
//
// Competitions are processed by a bounded worker pool — never unbounded
// fan-out — and one competition's error never aborts the cycle for the
// rest. Every cycle is idempotent, so "try again next tick" is always the
// retry policy.
package engine

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultWorkers    = 4
	defaultClaimLimit = 200
)

// CycleResult tracks the outcome of a full cycle run.
type CycleResult struct {
	Claimed     int
	Processed   int
	Transitions int
	Finalized   int
	Corrections int
	Broadcast   int
	AnyLive     bool
	Duration    time.Duration
	Errors      []string
}

// Summary returns a human-readable summary.
func (r *CycleResult) Summary() string {
	return fmt.Sprintf(
		"claimed=%d processed=%d transitions=%d finalized=%d corrections=%d broadcast=%d live=%v dur=%s",
		r.Claimed, r.Processed, r.Transitions, r.Finalized,
		r.Corrections, r.Broadcast, r.AnyLive,
		r.Duration.Round(time.Millisecond))
}
