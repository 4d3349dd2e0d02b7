// Package scoring fetches fixture schedules and live score snapshots from
// the external scoring authority.
//
// The authority is rate-sensitive and eventually consistent: responses are
// cached per period with a TTL, and concurrent callers for the same period
// are coalesced into a single in-flight request. Failures mean "no
// information this cycle", never "scores are zero". Retry policy lives in
// the cycle cadence, not here.
package scoring

import "time"

// FixtureStatus is the authority's view of a single match.
type FixtureStatus string

const (
	StatusNotStarted FixtureStatus = "not_started"
	StatusInProgress FixtureStatus = "in_progress"
	StatusFinished   FixtureStatus = "finished"
	StatusPostponed  FixtureStatus = "postponed"
)

// Terminal reports whether a fixture can no longer produce score changes
// this period. Postponed is NOT terminal: a postponed match gets replayed,
// so it drags its period back into play.
func (s FixtureStatus) Terminal() bool {
	return s == StatusFinished
}

// Fixture is a single real-world match inside a period. Read-only here;
// re-fetched each cycle because postponement can change status retroactively.
type Fixture struct {
	ID      int           `json:"id"`
	Period  int           `json:"period"`
	Kickoff time.Time     `json:"kickoff"`
	Status  FixtureStatus `json:"status"`
}

// Score is one participant's cumulative score components. Bonus is revised
// by the authority hours after matches end, so it participates in the
// stability fingerprint.
type Score struct {
	Points int `json:"points"`
	Bonus  int `json:"bonus"`
}

// Total is the participant's effective cumulative score.
func (s Score) Total() int {
	return s.Points + s.Bonus
}

// Snapshot is the live per-period score table, shared by every competition
// on the same period. Transient: held only in the client cache.
type Snapshot struct {
	Period    int
	Scores    map[int]Score // participant id → score
	FetchedAt time.Time
}

// EarliestKickoff returns the period's entry deadline: the earliest kickoff
// across its fixtures. Recomputed each cycle since fixtures get rescheduled.
func EarliestKickoff(fixtures []Fixture) (time.Time, bool) {
	var earliest time.Time
	for _, f := range fixtures {
		if earliest.IsZero() || f.Kickoff.Before(earliest) {
			earliest = f.Kickoff
		}
	}
	return earliest, !earliest.IsZero()
}

// AllTerminal reports whether every fixture in the list is terminal.
// An empty list is never terminal — no data is not the same as done.
func AllTerminal(fixtures []Fixture) bool {
	if len(fixtures) == 0 {
		return false
	}
	for _, f := range fixtures {
		if !f.Status.Terminal() {
			return false
		}
	}
	return true
}

// AnyInProgress reports whether any fixture is currently being played.
func AnyInProgress(fixtures []Fixture) bool {
	for _, f := range fixtures {
		if f.Status == StatusInProgress {
			return true
		}
	}
	return false
}
