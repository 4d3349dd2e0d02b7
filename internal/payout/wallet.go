package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitchside/gameweek-engine/internal/standings"
)

// Payer is the consumed wallet collaborator interface. The engine never
// computes prize amounts — it supplies the final ranking and nothing else.
type Payer interface {
	Payout(ctx context.Context, competitionID int, ranking []standings.Entry) error
}

// WalletClient posts final rankings to the wallet service.
// Nil-safe: when not configured, payouts are logged and treated as sent,
// which keeps development environments running without a wallet.
type WalletClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewWalletClient creates a wallet client. Returns nil if baseURL is empty
// (payout delivery disabled).
func NewWalletClient(baseURL string, logger *slog.Logger) *WalletClient {
	if baseURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// payoutRequest is the wire shape sent to the wallet collaborator.
type payoutRequest struct {
	CompetitionID int               `json:"competition_id"`
	Ranking       []standings.Entry `json:"ranking"`
}

// Payout sends the final ranking for one competition.
func (w *WalletClient) Payout(ctx context.Context, competitionID int, ranking []standings.Entry) error {
	if w == nil {
		slog.Default().Info("Payout skipped (wallet not configured)",
			"competition_id", competitionID, "entries", len(ranking))
		return nil
	}

	body, err := json.Marshal(payoutRequest{CompetitionID: competitionID, Ranking: ranking})
	if err != nil {
		return fmt.Errorf("marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payout request for competition %d: %w", competitionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("wallet returned %d for competition %d: %s", resp.StatusCode, competitionID, raw)
	}
	return nil
}
