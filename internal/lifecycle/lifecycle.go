// Package lifecycle owns per-competition state and the transition rules
// driven by fixture status and score stability.
//
// Advance is a pure function of (fixtures, stability, now); persistence of
// the resulting decision lives in store.go. Only the transition into
// FINALIZED carries a side effect, and that side effect is a payout job
// enqueue guarded by a conditional update on finalized_at.
package lifecycle

import (
	"time"

	"github.com/pitchside/gameweek-engine/internal/scoring"
)

// State is a competition's lifecycle state.
type State string

const (
	StateOpenForEntry State = "OPEN_FOR_ENTRY"
	StateInProgress   State = "IN_PROGRESS"
	StateWaiting      State = "WAITING_FOR_UPDATES"
	StateFinalized    State = "FINALIZED"
)

// Competition is the engine's view of one ranked contest on one period.
type Competition struct {
	ID              int
	PeriodID        int
	State           State
	StabilityWindow time.Duration

	SoftFinalizedAt      *time.Time
	FinalizedAt          *time.Time
	LastStabilityCheckAt *time.Time
	ScoreFingerprint     string
	PayoutPending        bool
}

// Finalized reports whether the competition has been permanently finalized.
func (c *Competition) Finalized() bool {
	return c.FinalizedAt != nil
}

// Decision is the outcome of one Advance call: the next state plus the
// bookkeeping the transition requires.
type Decision struct {
	Next   State
	Reason string

	SetSoftFinalized   bool
	ClearSoftFinalized bool
	ResetStability     bool
	Finalize           bool
}

// Transitioned reports whether the decision changes state.
func (d Decision) Transitioned(from State) bool {
	return d.Next != from
}

// Advance computes the next lifecycle state. Deterministic given
// (fixtures, stable, now) and the competition's persisted fields — no
// hidden randomness, no clock reads.
//
// An empty fixture list means the fetch produced no information this
// cycle: fail safe, hold position, try again next tick.
func Advance(c *Competition, fixtures []scoring.Fixture, stable bool, now time.Time) Decision {
	if len(fixtures) == 0 {
		return Decision{Next: c.State, Reason: "no fixture data this cycle"}
	}

	// FINALIZED is terminal. Post-finalization revisions are recorded as
	// corrections elsewhere, never as transitions.
	if c.State == StateFinalized || c.Finalized() {
		return Decision{Next: StateFinalized, Reason: "already finalized"}
	}

	allTerminal := scoring.AllTerminal(fixtures)

	if !allTerminal {
		// A fixture reverting to non-terminal (late postponement) drags a
		// soft-finalized competition back into play, however many times.
		if c.State == StateWaiting || c.SoftFinalizedAt != nil {
			return Decision{
				Next:               StateInProgress,
				Reason:             "fixture reverted to non-terminal",
				ClearSoftFinalized: true,
				ResetStability:     true,
			}
		}
		if c.State == StateOpenForEntry {
			kickoff, ok := scoring.EarliestKickoff(fixtures)
			if ok && !now.Before(kickoff) {
				return Decision{Next: StateInProgress, Reason: "entry deadline passed"}
			}
			return Decision{Next: StateOpenForEntry, Reason: "before earliest kickoff"}
		}
		return Decision{Next: StateInProgress, Reason: "fixtures still running"}
	}

	// Every fixture is terminal.
	switch c.State {
	case StateOpenForEntry, StateInProgress:
		return Decision{
			Next:             StateWaiting,
			Reason:           "all fixtures terminal",
			SetSoftFinalized: true,
		}
	case StateWaiting:
		if stable {
			return Decision{
				Next:     StateFinalized,
				Reason:   "scores stable for full window",
				Finalize: true,
			}
		}
		return Decision{Next: StateWaiting, Reason: "awaiting score stability"}
	}

	return Decision{Next: c.State, Reason: "no applicable transition"}
}
