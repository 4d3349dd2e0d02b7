// Package standings converts live score snapshots into ranked competition
// entries and persists changes in bulk.
//
// Entries are mutated only here, one transaction per recompute pass —
// never individually from concurrent paths.
package standings

import (
	"sort"
	"time"

	"github.com/pitchside/gameweek-engine/internal/scoring"
)

// Entry is a participant's ranked record within a competition.
type Entry struct {
	ID            int       `json:"id"`
	CompetitionID int       `json:"competition_id"`
	ParticipantID int       `json:"participant_id"`
	JoinedAt      time.Time `json:"joined_at"`
	Score         int       `json:"score"`
	Rank          int       `json:"rank"`
	PreviousRank  int       `json:"previous_rank"`
}

// Recompute maps each entry's participant to its latest cumulative score
// from the snapshot and assigns dense ranks from 1. Participants absent
// from the snapshot retain their last known score — a partial fetch never
// resets anyone to zero. Ties break to the earlier join time, then entry
// id, so the order is total and deterministic.
//
// Returns the fully ranked list and the changed set: exactly the entries
// whose rank or score differ from their stored values. Only the changed
// set is written or broadcast.
func Recompute(entries []Entry, snap *scoring.Snapshot) (ranked, changed []Entry) {
	ranked = make([]Entry, len(entries))
	copy(ranked, entries)

	for i := range ranked {
		if s, ok := snap.Scores[ranked[i].ParticipantID]; ok {
			ranked[i].Score = s.Total()
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].JoinedAt.Equal(ranked[j].JoinedAt) {
			return ranked[i].JoinedAt.Before(ranked[j].JoinedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})

	prev := make(map[int]Entry, len(entries))
	for _, e := range entries {
		prev[e.ID] = e
	}

	for i := range ranked {
		ranked[i].Rank = i + 1
		old := prev[ranked[i].ID]
		if ranked[i].Rank != old.Rank || ranked[i].Score != old.Score {
			ranked[i].PreviousRank = old.Rank
			changed = append(changed, ranked[i])
		}
	}
	return ranked, changed
}
