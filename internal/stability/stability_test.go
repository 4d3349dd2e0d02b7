package stability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/gameweek-engine/internal/scoring"
)

func snapshot(scores map[int]scoring.Score) *scoring.Snapshot {
	return &scoring.Snapshot{Period: 7, Scores: scores}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := snapshot(map[int]scoring.Score{
		1: {Points: 10, Bonus: 2},
		2: {Points: 8, Bonus: 0},
		3: {Points: 15, Bonus: 3},
	})
	// Maps iterate in arbitrary order; build the same content fresh to make
	// sure the hash is over sorted participants, not insertion order.
	b := snapshot(map[int]scoring.Score{
		3: {Points: 15, Bonus: 3},
		1: {Points: 10, Bonus: 2},
		2: {Points: 8, Bonus: 0},
	})
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintSensitiveToBonus(t *testing.T) {
	base := snapshot(map[int]scoring.Score{1: {Points: 10, Bonus: 0}})
	revised := snapshot(map[int]scoring.Score{1: {Points: 10, Bonus: 3}})
	assert.NotEqual(t, Fingerprint(base), Fingerprint(revised),
		"bonus revisions must change the fingerprint")
}

func TestObserveFirstSightingStartsWindow(t *testing.T) {
	now := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

	tr, stable := Observe(Tracking{}, "abc", time.Hour, now)
	assert.False(t, stable)
	assert.Equal(t, "abc", tr.Fingerprint)
	assert.Equal(t, now, tr.LastCheckAt)
}

func TestObserveStableAfterFullWindow(t *testing.T) {
	start := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	tr := Tracking{Fingerprint: "abc", LastCheckAt: start}

	_, stable := Observe(tr, "abc", time.Hour, start.Add(59*time.Minute))
	assert.False(t, stable, "window not yet elapsed")

	_, stable = Observe(tr, "abc", time.Hour, start.Add(time.Hour))
	assert.True(t, stable)
}

func TestObserveChangeRestartsWindow(t *testing.T) {
	start := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	tr := Tracking{Fingerprint: "abc", LastCheckAt: start}

	// A change 10 minutes before the window would have elapsed restarts it.
	changeAt := start.Add(50 * time.Minute)
	tr, stable := Observe(tr, "def", time.Hour, changeAt)
	require.False(t, stable)
	assert.Equal(t, "def", tr.Fingerprint)
	assert.Equal(t, changeAt, tr.LastCheckAt)

	// The original window's expiry is no longer enough: the full window
	// must elapse from the change.
	_, stable = Observe(tr, "def", time.Hour, start.Add(time.Hour))
	assert.False(t, stable)

	_, stable = Observe(tr, "def", time.Hour, changeAt.Add(time.Hour))
	assert.True(t, stable)
}

func TestObserveUnchangedKeepsAnchor(t *testing.T) {
	start := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	tr := Tracking{Fingerprint: "abc", LastCheckAt: start}

	next, _ := Observe(tr, "abc", time.Hour, start.Add(30*time.Minute))
	assert.Equal(t, tr, next, "an unchanged fingerprint must not move the window anchor")
}
