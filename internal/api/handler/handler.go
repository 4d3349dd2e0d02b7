// Package handler provides HTTP handlers for the engine's read surfaces.
// The engine has no end-user-facing writes — its effects are observed
// through competition status and standings, which is exactly what these
// endpoints expose. Re-subscribing websocket clients pull their full
// snapshot here instead of relying on buffered diffs.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchside/gameweek-engine/internal/api/respond"
	"github.com/pitchside/gameweek-engine/internal/cache"
	"github.com/pitchside/gameweek-engine/internal/lifecycle"
	"github.com/pitchside/gameweek-engine/internal/standings"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool  *pgxpool.Pool
	cache *cache.Cache
}

// New creates a Handler with shared dependencies.
func New(pool *pgxpool.Pool, c *cache.Cache) *Handler {
	return &Handler{pool: pool, cache: c}
}

// HealthCheck reports process liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckDB reports database reachability.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	if err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n); err != nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]string{"status": "ok"})
}

// competitionView is the wire shape for lifecycle status.
type competitionView struct {
	ID                   int        `json:"id"`
	PeriodID             int        `json:"period_id"`
	State                string     `json:"state"`
	StabilityWindow      string     `json:"stability_window"`
	SoftFinalizedAt      *time.Time `json:"soft_finalized_at,omitempty"`
	FinalizedAt          *time.Time `json:"finalized_at,omitempty"`
	LastStabilityCheckAt *time.Time `json:"last_stability_check_at,omitempty"`
	PayoutPending        bool       `json:"payout_pending"`
}

// GetCompetition returns one competition's lifecycle status.
func (h *Handler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cacheKey := fmt.Sprintf("competition:%d", id)
	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLStatus, true)
		return
	}

	comp, err := lifecycle.GetByID(r.Context(), h.pool, id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "competition not found")
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}

	data, err := json.Marshal(competitionView{
		ID:                   comp.ID,
		PeriodID:             comp.PeriodID,
		State:                string(comp.State),
		StabilityWindow:      comp.StabilityWindow.String(),
		SoftFinalizedAt:      comp.SoftFinalizedAt,
		FinalizedAt:          comp.FinalizedAt,
		LastStabilityCheckAt: comp.LastStabilityCheckAt,
		PayoutPending:        comp.PayoutPending,
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", err.Error())
		return
	}

	etag := h.cache.Set(cacheKey, data, cache.TTLStatus)
	respond.WriteJSON(w, data, etag, cache.TTLStatus, false)
}

// GetStandings returns a competition's full current ranking — the snapshot
// read path subscribers use on (re)connect.
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	cacheKey := fmt.Sprintf("standings:%d", id)
	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLStandings, true)
		return
	}

	ranking, err := standings.Ranking(r.Context(), h.pool, id)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}

	data, err := json.Marshal(map[string]any{
		"competition_id": id,
		"entries":        ranking,
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_FAILED", err.Error())
		return
	}

	etag := h.cache.Set(cacheKey, data, cache.TTLStandings)
	respond.WriteJSON(w, data, etag, cache.TTLStandings, false)
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "competitionID"))
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "BAD_ID", "competitionID must be a positive integer")
		return 0, false
	}
	return id, true
}
