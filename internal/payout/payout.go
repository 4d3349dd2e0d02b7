// Package payout hands finalized competitions off to the external wallet
// collaborator, exactly once per competition.
//
// Finalization enqueues a payout job (lifecycle.Finalize, conditional on
// finalized_at) and fires pg_notify. A dedicated LISTEN connection picks
// jobs up immediately; a background dispatch ticker is the catch-up path.
// Collaborator failures are retryable without re-finalizing: the
// competition stays FINALIZED, the job keeps its pending flag.
package payout

import "time"

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	dispatchInterval  = 30 * time.Second
	dispatchBatchSize = 50
	notifyChannel     = "competition_finalized"
	reconnectBackoff  = 5 * time.Second
	maxReconnect      = 30 * time.Second
)

// Job is one queued payout handoff.
type Job struct {
	ID            int
	CompetitionID int
	Status        string // pending | sending | done | failed
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
