// Package stability decides when a period's live scores have stopped
// changing for long enough to finalize the competitions built on it.
//
// A fingerprint is a deterministic hash over every score-relevant field in
// a snapshot. The quiet window restarts on every observed change: this is a
// debounce, not a timeout, so a single stale read can never finalize a
// competition prematurely.
package stability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pitchside/gameweek-engine/internal/scoring"
)

// Tracking is the persisted per-competition stability state.
type Tracking struct {
	Fingerprint string
	LastCheckAt time.Time
}

// Fingerprint computes a content hash over a live snapshot. Participants
// are sorted by id before hashing so re-ordered source data does not
// produce false instability. Bonus is included because the authority
// revises it after matches end.
func Fingerprint(snap *scoring.Snapshot) string {
	ids := make([]int, 0, len(snap.Scores))
	for id := range snap.Scores {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	for _, id := range ids {
		s := snap.Scores[id]
		fmt.Fprintf(&sb, "%d:%d:%d;", id, s.Points, s.Bonus)
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Observe folds a freshly computed fingerprint into the tracking state and
// reports whether the competition is stable: the fingerprint is unchanged
// AND the quiet window has fully elapsed since the last change. Any change
// stores the new fingerprint and restarts the window at now.
func Observe(tr Tracking, fingerprint string, window time.Duration, now time.Time) (Tracking, bool) {
	if fingerprint != tr.Fingerprint || tr.LastCheckAt.IsZero() {
		return Tracking{Fingerprint: fingerprint, LastCheckAt: now}, false
	}
	return tr, now.Sub(tr.LastCheckAt) >= window
}
