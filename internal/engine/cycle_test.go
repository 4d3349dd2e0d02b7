package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/gameweek-engine/internal/lifecycle"
	"github.com/pitchside/gameweek-engine/internal/scoring"
	"github.com/pitchside/gameweek-engine/internal/stability"
	"github.com/pitchside/gameweek-engine/internal/standings"
)

var cycleNow = time.Date(2026, 5, 9, 20, 0, 0, 0, time.UTC)

// ---- Fakes -----------------------------------------------------------------

type fakeStore struct {
	mu    sync.Mutex
	comps []lifecycle.Competition
	rows  map[int][]standings.Entry

	finalizeErr error

	released      []int
	finalizeCalls int
	finalized     []int
	applied       []lifecycle.Decision
	updatedCount  int
	corrections   int
	lastStability map[int]stability.Tracking
}

func newFakeStore(comps ...lifecycle.Competition) *fakeStore {
	return &fakeStore{
		comps:         comps,
		rows:          make(map[int][]standings.Entry),
		lastStability: make(map[int]stability.Tracking),
	}
}

func (s *fakeStore) ClaimDue(ctx context.Context, lease time.Duration, limit int) ([]lifecycle.Competition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lifecycle.Competition, len(s.comps))
	copy(out, s.comps)
	return out, nil
}

func (s *fakeStore) ReleaseClaim(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	return nil
}

func (s *fakeStore) UpdateStability(ctx context.Context, id int, fingerprint string, lastCheckAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStability[id] = stability.Tracking{Fingerprint: fingerprint, LastCheckAt: lastCheckAt}
	for i := range s.comps {
		if s.comps[i].ID == id {
			s.comps[i].ScoreFingerprint = fingerprint
			t := lastCheckAt
			s.comps[i].LastStabilityCheckAt = &t
		}
	}
	return nil
}

func (s *fakeStore) Apply(ctx context.Context, c *lifecycle.Competition, d lifecycle.Decision, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, d)
	for i := range s.comps {
		if s.comps[i].ID == c.ID {
			s.comps[i].State = d.Next
		}
	}
	return nil
}

func (s *fakeStore) Finalize(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeCalls++
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.finalized = append(s.finalized, id)
	return nil
}

func (s *fakeStore) ListEntries(ctx context.Context, competitionID int) ([]standings.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[competitionID], nil
}

func (s *fakeStore) UpdateEntries(ctx context.Context, changed []standings.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedCount += len(changed)
	return nil
}

func (s *fakeStore) RecordCorrection(ctx context.Context, competitionID int, oldFP, newFP, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections++
	return nil
}

type fakeSource struct {
	fixtures    map[int][]scoring.Fixture
	fixturesErr map[int]error
	scores      map[int]*scoring.Snapshot
	scoresErr   map[int]error
}

func (f *fakeSource) FetchFixtures(ctx context.Context, period int) ([]scoring.Fixture, error) {
	if err := f.fixturesErr[period]; err != nil {
		return nil, err
	}
	return f.fixtures[period], nil
}

func (f *fakeSource) FetchLiveScores(ctx context.Context, period int) (*scoring.Snapshot, error) {
	if err := f.scoresErr[period]; err != nil {
		return nil, err
	}
	return f.scores[period], nil
}

type recordingHub struct {
	mu      sync.Mutex
	diffs   []int
	globals int
}

func (h *recordingHub) PublishDiff(competitionID int, changed []standings.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.diffs = append(h.diffs, competitionID)
}

func (h *recordingHub) PublishGlobal(competitionID, changedCount int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals++
}

func newTestEngine(st Store, src ScoreSource, hub Broadcaster) *Engine {
	return &Engine{
		store:  st,
		source: src,
		hub:    hub,
		cfg: Config{
			Workers:            2,
			ClaimLimit:         50,
			LeaseDuration:      time.Minute,
			CompetitionTimeout: 5 * time.Second,
			BatchMin:           10,
			BatchMax:           100,
			LatencyThreshold:   25 * time.Millisecond,
		},
		sizer:  NewSizer(10, 100, 25*time.Millisecond),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func comp(id, period int, state lifecycle.State) lifecycle.Competition {
	return lifecycle.Competition{
		ID:              id,
		PeriodID:        period,
		State:           state,
		StabilityWindow: time.Hour,
	}
}

func runningFixtures(period int) []scoring.Fixture {
	return []scoring.Fixture{
		{ID: 1, Period: period, Kickoff: cycleNow.Add(-time.Hour), Status: scoring.StatusInProgress},
	}
}

func finishedFixtures(period int) []scoring.Fixture {
	return []scoring.Fixture{
		{ID: 1, Period: period, Kickoff: cycleNow.Add(-5 * time.Hour), Status: scoring.StatusFinished},
		{ID: 2, Period: period, Kickoff: cycleNow.Add(-3 * time.Hour), Status: scoring.StatusFinished},
	}
}

// ---- Tests -----------------------------------------------------------------

func TestCycleIsolatesFailingCompetition(t *testing.T) {
	st := newFakeStore(
		comp(1, 1, lifecycle.StateOpenForEntry),
		comp(2, 2, lifecycle.StateOpenForEntry),
		comp(3, 3, lifecycle.StateOpenForEntry),
	)
	future := func(period int) []scoring.Fixture {
		return []scoring.Fixture{
			{ID: 1, Period: period, Kickoff: cycleNow.Add(2 * time.Hour), Status: scoring.StatusNotStarted},
		}
	}
	src := &fakeSource{
		fixtures:    map[int][]scoring.Fixture{1: future(1), 3: future(3)},
		fixturesErr: map[int]error{2: errors.New("authority timeout")},
	}
	eng := newTestEngine(st, src, &recordingHub{})

	result := eng.RunCycle(context.Background(), cycleNow)

	// One competition's upstream failure never aborts the cycle for the rest.
	assert.Equal(t, 3, result.Claimed)
	assert.Equal(t, 3, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "competition 2")

	// Every claimed competition releases its lease, failed ones included.
	assert.ElementsMatch(t, []int{1, 2, 3}, st.released)
}

func stableWaiting(id, period int, snap *scoring.Snapshot) lifecycle.Competition {
	c := comp(id, period, lifecycle.StateWaiting)
	soft := cycleNow.Add(-3 * time.Hour)
	c.SoftFinalizedAt = &soft
	c.ScoreFingerprint = stability.Fingerprint(snap)
	anchor := cycleNow.Add(-2 * time.Hour) // window elapsed
	c.LastStabilityCheckAt = &anchor
	return c
}

func TestCycleFinalizesStableWaiting(t *testing.T) {
	snap := &scoring.Snapshot{Period: 7, Scores: map[int]scoring.Score{101: {Points: 40}}}
	st := newFakeStore(stableWaiting(1, 7, snap))
	src := &fakeSource{
		fixtures: map[int][]scoring.Fixture{7: finishedFixtures(7)},
		scores:   map[int]*scoring.Snapshot{7: snap},
	}
	eng := newTestEngine(st, src, &recordingHub{})

	result := eng.RunCycle(context.Background(), cycleNow)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Finalized)
	assert.Equal(t, 1, result.Transitions)
	assert.Equal(t, []int{1}, st.finalized)
}

func TestFinalizeGuardLossIsQuiet(t *testing.T) {
	snap := &scoring.Snapshot{Period: 7, Scores: map[int]scoring.Score{101: {Points: 40}}}
	st := newFakeStore(stableWaiting(1, 7, snap))
	st.finalizeErr = lifecycle.ErrFinalizeGuard
	src := &fakeSource{
		fixtures: map[int][]scoring.Fixture{7: finishedFixtures(7)},
		scores:   map[int]*scoring.Snapshot{7: snap},
	}
	eng := newTestEngine(st, src, &recordingHub{})

	result := eng.RunCycle(context.Background(), cycleNow)

	// Losing the finalize race is a normal outcome: the conditional update
	// matched zero rows, the winner fired the payout enqueue, this side
	// reports nothing finalized and no error.
	assert.Equal(t, 1, st.finalizeCalls)
	assert.Empty(t, st.finalized, "guarded finalize must not enqueue a payout")
	assert.Equal(t, 0, result.Finalized)
	assert.Empty(t, result.Errors)
}

func TestCycleSyncsStandingsAndBroadcasts(t *testing.T) {
	snap := &scoring.Snapshot{Period: 7, Scores: map[int]scoring.Score{
		101: {Points: 50},
		102: {Points: 60},
	}}
	st := newFakeStore(comp(1, 7, lifecycle.StateInProgress))
	st.rows[1] = []standings.Entry{
		{ID: 1, CompetitionID: 1, ParticipantID: 101, JoinedAt: cycleNow.Add(-time.Hour), Score: 50, Rank: 1},
		{ID: 2, CompetitionID: 1, ParticipantID: 102, JoinedAt: cycleNow.Add(-time.Hour), Score: 30, Rank: 2},
	}
	src := &fakeSource{
		fixtures: map[int][]scoring.Fixture{7: runningFixtures(7)},
		scores:   map[int]*scoring.Snapshot{7: snap},
	}
	hub := &recordingHub{}
	eng := newTestEngine(st, src, hub)

	result := eng.RunCycle(context.Background(), cycleNow)

	assert.Empty(t, result.Errors)
	assert.True(t, result.AnyLive)
	assert.Equal(t, 2, result.Broadcast, "both entries changed rank or score")
	assert.Equal(t, 2, st.updatedCount)
	assert.Equal(t, []int{1}, hub.diffs)
	assert.Equal(t, 1, hub.globals)
}

func TestRevisionWatchRecordsCorrectionOnce(t *testing.T) {
	c := comp(1, 7, lifecycle.StateFinalized)
	final := cycleNow.Add(-time.Hour)
	c.FinalizedAt = &final
	c.ScoreFingerprint = stability.Fingerprint(&scoring.Snapshot{
		Period: 7, Scores: map[int]scoring.Score{101: {Points: 40}},
	})

	revised := &scoring.Snapshot{Period: 7, Scores: map[int]scoring.Score{101: {Points: 40, Bonus: 3}}}
	st := newFakeStore(c)
	src := &fakeSource{
		fixtures: map[int][]scoring.Fixture{7: finishedFixtures(7)},
		scores:   map[int]*scoring.Snapshot{7: revised},
	}
	eng := newTestEngine(st, src, &recordingHub{})

	result := eng.RunCycle(context.Background(), cycleNow)

	assert.Equal(t, 1, result.Corrections)
	assert.Equal(t, 1, st.corrections)
	assert.Equal(t, 0, result.Finalized, "a revision never re-finalizes or re-pays")
	// The stored anchor carries the cycle's clock, not a fresh read.
	assert.Equal(t, cycleNow, st.lastStability[1].LastCheckAt)

	// The revised fingerprint is now on record, so the same revision does
	// not produce a second correction.
	result = eng.RunCycle(context.Background(), cycleNow.Add(90*time.Second))
	assert.Equal(t, 0, result.Corrections)
	assert.Equal(t, 1, st.corrections)
}
