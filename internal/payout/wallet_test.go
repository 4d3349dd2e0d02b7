package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/gameweek-engine/internal/standings"
)

func TestWalletPayoutPostsRanking(t *testing.T) {
	var got payoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewWalletClient(srv.URL, nil)
	require.NotNil(t, client)

	ranking := []standings.Entry{
		{ID: 1, CompetitionID: 7, ParticipantID: 101, Rank: 1, Score: 88},
		{ID: 2, CompetitionID: 7, ParticipantID: 102, Rank: 2, Score: 71},
	}
	err := client.Payout(context.Background(), 7, ranking)
	require.NoError(t, err)

	assert.Equal(t, 7, got.CompetitionID)
	require.Len(t, got.Ranking, 2)
	assert.Equal(t, 1, got.Ranking[0].Rank)
	assert.Equal(t, 101, got.Ranking[0].ParticipantID)
}

func TestWalletPayoutErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds pool", http.StatusConflict)
	}))
	defer srv.Close()

	client := NewWalletClient(srv.URL, nil)
	err := client.Payout(context.Background(), 7, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "insufficient funds pool")
}

func TestNilWalletClientIsNoop(t *testing.T) {
	var client *WalletClient
	assert.NoError(t, client.Payout(context.Background(), 7, nil))
}

func TestNewWalletClientEmptyURLDisabled(t *testing.T) {
	assert.Nil(t, NewWalletClient("", nil))
}
