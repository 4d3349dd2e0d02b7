package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Options tunes the client. Zero values fall back to defaults.
type Options struct {
	RequestsPerMinute int
	MaxInflight       int64
	Timeout           time.Duration
	LiveTTL           time.Duration
	IdleTTL           time.Duration
}

// Client is the HTTP client for the scoring authority. Safe for concurrent
// use by many competition workers: responses are cached per period and
// concurrent fills are de-duplicated through a single-flight group.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	inflight   *semaphore.Weighted
	group      singleflight.Group
	logger     *slog.Logger

	liveTTL time.Duration
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewClient creates a scoring authority client with rate limiting, bounded
// in-flight requests, and per-period response caching.
func NewClient(baseURL, apiKey string, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 60
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.LiveTTL <= 0 {
		opts.LiveTTL = 30 * time.Second
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	rps := float64(opts.RequestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		inflight:   semaphore.NewWeighted(opts.MaxInflight),
		logger:     logger,
		liveTTL:    opts.LiveTTL,
		idleTTL:    opts.IdleTTL,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// FetchFixtures returns the fixture list for a period. Idempotent read;
// cached so that many competitions sharing a period produce one upstream
// call per TTL window.
func (c *Client) FetchFixtures(ctx context.Context, period int) ([]Fixture, error) {
	key := fmt.Sprintf("fixtures:%d", period)
	if v, ok := c.cached(key); ok {
		return v.([]Fixture), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.cached(key); ok {
			return v, nil
		}
		var fixtures []Fixture
		if err := c.get(ctx, fmt.Sprintf("/periods/%d/fixtures", period), &fixtures); err != nil {
			return nil, err
		}
		c.store(key, fixtures, c.fixtureTTL(fixtures))
		return fixtures, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Fixture), nil
}

// FetchLiveScores returns the live score snapshot for a period, shared
// across every competition on that period.
func (c *Client) FetchLiveScores(ctx context.Context, period int) (*Snapshot, error) {
	key := fmt.Sprintf("live:%d", period)
	if v, ok := c.cached(key); ok {
		return v.(*Snapshot), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.cached(key); ok {
			return v, nil
		}
		var rows []liveRow
		if err := c.get(ctx, fmt.Sprintf("/periods/%d/live", period), &rows); err != nil {
			return nil, err
		}
		snap := &Snapshot{
			Period:    period,
			Scores:    make(map[int]Score, len(rows)),
			FetchedAt: c.now(),
		}
		for _, r := range rows {
			snap.Scores[r.ParticipantID] = Score{Points: r.Points, Bonus: r.Bonus}
		}
		c.store(key, snap, c.liveTTLFor(period))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// liveRow is the wire shape of one live score entry.
type liveRow struct {
	ParticipantID int `json:"participant_id"`
	Points        int `json:"points"`
	Bonus         int `json:"bonus"`
}

// fixtureTTL picks the cache TTL for a fixture list: short while anything
// is live, long once the period has settled.
func (c *Client) fixtureTTL(fixtures []Fixture) time.Duration {
	if AnyInProgress(fixtures) || !AllTerminal(fixtures) {
		return c.liveTTL
	}
	return c.idleTTL
}

// liveTTLFor picks the snapshot TTL from the last-seen fixture list for the
// period. Unknown periods default to the short TTL — safe, just chattier.
func (c *Client) liveTTLFor(period int) time.Duration {
	if v, ok := c.cached(fmt.Sprintf("fixtures:%d", period)); ok {
		fixtures := v.([]Fixture)
		if AllTerminal(fixtures) && !AnyInProgress(fixtures) {
			return c.idleTTL
		}
	}
	return c.liveTTL
}

func (c *Client) cached(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.cache[key]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Client) store(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// get performs a rate-limited, inflight-bounded GET against the authority.
// No retries here — the next cycle is the retry.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire inflight slot: %w", err)
	}
	defer c.inflight.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scoring authority %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
