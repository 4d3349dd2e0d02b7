package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pitchside/gameweek-engine/internal/scoring"
)

var kickoff = time.Date(2026, 5, 9, 15, 0, 0, 0, time.UTC)

func fixtures(statuses ...scoring.FixtureStatus) []scoring.Fixture {
	out := make([]scoring.Fixture, len(statuses))
	for i, s := range statuses {
		out[i] = scoring.Fixture{
			ID:      i + 1,
			Period:  7,
			Kickoff: kickoff.Add(time.Duration(i) * 2 * time.Hour),
			Status:  s,
		}
	}
	return out
}

func competition(state State) *Competition {
	return &Competition{
		ID:              1,
		PeriodID:        7,
		State:           state,
		StabilityWindow: time.Hour,
	}
}

func TestAdvanceEmptyFixturesHoldsPosition(t *testing.T) {
	for _, state := range []State{StateOpenForEntry, StateInProgress, StateWaiting} {
		c := competition(state)
		d := Advance(c, nil, false, kickoff)
		assert.Equal(t, state, d.Next, "state %s must hold with no fixture data", state)
		assert.False(t, d.Finalize)
	}
}

func TestAdvanceOpenUntilEarliestKickoff(t *testing.T) {
	c := competition(StateOpenForEntry)
	fx := fixtures(scoring.StatusNotStarted, scoring.StatusNotStarted, scoring.StatusNotStarted)

	d := Advance(c, fx, false, kickoff.Add(-time.Minute))
	assert.Equal(t, StateOpenForEntry, d.Next)

	d = Advance(c, fx, false, kickoff)
	assert.Equal(t, StateInProgress, d.Next)
}

func TestAdvanceKickoffRescheduleMovesDeadline(t *testing.T) {
	c := competition(StateOpenForEntry)
	fx := fixtures(scoring.StatusNotStarted)
	fx[0].Kickoff = kickoff.Add(3 * time.Hour) // rescheduled later

	d := Advance(c, fx, false, kickoff.Add(time.Hour))
	assert.Equal(t, StateOpenForEntry, d.Next,
		"deadline is recomputed from fixtures each cycle")
}

func TestAdvanceAllTerminalSoftFinalizes(t *testing.T) {
	c := competition(StateInProgress)
	fx := fixtures(scoring.StatusFinished, scoring.StatusFinished, scoring.StatusFinished)

	d := Advance(c, fx, false, kickoff.Add(4*time.Hour))
	assert.Equal(t, StateWaiting, d.Next)
	assert.True(t, d.SetSoftFinalized)
	assert.False(t, d.Finalize)
}

func TestAdvancePartialTerminalDoesNotSoftFinalize(t *testing.T) {
	c := competition(StateInProgress)
	fx := fixtures(scoring.StatusFinished, scoring.StatusInProgress)

	d := Advance(c, fx, false, kickoff.Add(2*time.Hour))
	assert.Equal(t, StateInProgress, d.Next)
	assert.False(t, d.SetSoftFinalized)
}

func TestAdvanceWaitingFinalizesOnlyWhenStable(t *testing.T) {
	c := competition(StateWaiting)
	soft := kickoff.Add(4 * time.Hour)
	c.SoftFinalizedAt = &soft
	fx := fixtures(scoring.StatusFinished, scoring.StatusFinished)

	d := Advance(c, fx, false, soft.Add(30*time.Minute))
	assert.Equal(t, StateWaiting, d.Next)
	assert.False(t, d.Finalize)

	d = Advance(c, fx, true, soft.Add(70*time.Minute))
	assert.Equal(t, StateFinalized, d.Next)
	assert.True(t, d.Finalize)
}

func TestAdvancePostponementBouncesBackToInProgress(t *testing.T) {
	c := competition(StateWaiting)
	soft := kickoff.Add(4 * time.Hour)
	c.SoftFinalizedAt = &soft

	// A previously finished fixture flips to postponed.
	fx := fixtures(scoring.StatusFinished, scoring.StatusPostponed)

	d := Advance(c, fx, true, soft.Add(2*time.Hour))
	assert.Equal(t, StateInProgress, d.Next)
	assert.True(t, d.ClearSoftFinalized)
	assert.True(t, d.ResetStability)
	assert.False(t, d.Finalize, "stability result is irrelevant once a fixture reverts")
}

func TestAdvanceBounceRepeats(t *testing.T) {
	// A competition can bounce IN_PROGRESS <-> WAITING_FOR_UPDATES
	// arbitrarily many times before its first finalization.
	c := competition(StateInProgress)
	finished := fixtures(scoring.StatusFinished, scoring.StatusFinished)
	reverted := fixtures(scoring.StatusFinished, scoring.StatusPostponed)
	now := kickoff.Add(4 * time.Hour)

	for i := 0; i < 3; i++ {
		d := Advance(c, finished, false, now)
		assert.Equal(t, StateWaiting, d.Next)
		c.State = StateWaiting
		soft := now
		c.SoftFinalizedAt = &soft

		d = Advance(c, reverted, false, now.Add(time.Hour))
		assert.Equal(t, StateInProgress, d.Next)
		c.State = StateInProgress
		c.SoftFinalizedAt = nil
	}
}

func TestAdvanceFinalizedIsTerminal(t *testing.T) {
	c := competition(StateFinalized)
	final := kickoff.Add(10 * time.Hour)
	c.FinalizedAt = &final

	// Even a reverted fixture does not un-finalize: revisions become
	// correction records, not transitions.
	d := Advance(c, fixtures(scoring.StatusPostponed), false, final.Add(time.Hour))
	assert.Equal(t, StateFinalized, d.Next)
	assert.False(t, d.Finalize)
	assert.False(t, d.ClearSoftFinalized)
}
