package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-health-alerts/internal/scoring"
)

const tokensPath = "/v1/tokens/metrics"

// HTTPOptions parameterise the metrics feed client.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTP polls a JSON metrics feed for per-token snapshots. The feed's
// participant classification (who counts as a sniper or insider) is
// upstream's concern; this client only reshapes the payload.
type HTTP struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTP constructs a feed client.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTP{
		opts:    opts,
		logger:  logger.With().Str("component", "metrics_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Fetch retrieves the current snapshot batch.
func (h *HTTP) Fetch(ctx context.Context) ([]scoring.Snapshot, error) {
	if h.baseURL == "" {
		return nil, errors.New("metrics feed url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+tokensPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "tokenhealth/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var feed feedResponse
	if err := json.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("decode metrics feed: %w", err)
	}

	snapshots := make([]scoring.Snapshot, 0, len(feed.Tokens))
	for _, tok := range feed.Tokens {
		snap, err := tok.toSnapshot()
		if err != nil {
			h.logger.Warn().Err(err).Str("mint", tok.Mint).Msg("skipping malformed feed entry")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

type feedResponse struct {
	Tokens []feedToken `json:"tokens"`
}

type feedToken struct {
	Mint         string    `json:"mint"`
	ObservedAt   time.Time `json:"observed_at"`
	LaunchedAt   time.Time `json:"launched_at"`
	LiquidityUSD string    `json:"liquidity_usd"`
	Holders      int64     `json:"holders"`
	FreshPct     float64   `json:"fresh_pct"`
	SniperPct    float64   `json:"sniper_pct"`
	InsiderPct   float64   `json:"insider_pct"`
	Top10Pct     float64   `json:"top10_pct"`
}

func (t feedToken) toSnapshot() (scoring.Snapshot, error) {
	if t.Mint == "" {
		return scoring.Snapshot{}, errors.New("missing mint")
	}
	if t.ObservedAt.IsZero() {
		return scoring.Snapshot{}, errors.New("missing observed_at")
	}
	liquidity, err := decimal.NewFromString(t.LiquidityUSD)
	if err != nil {
		return scoring.Snapshot{}, fmt.Errorf("parse liquidity: %w", err)
	}
	// Range clamping happens in the engine; only shape errors reject.
	return scoring.Snapshot{
		Entity:     t.Mint,
		ObservedAt: t.ObservedAt,
		LaunchedAt: t.LaunchedAt,
		Liquidity:  liquidity,
		Holders:    t.Holders,
		FreshPct:   t.FreshPct,
		SniperPct:  t.SniperPct,
		InsiderPct: t.InsiderPct,
		Top10Pct:   t.Top10Pct,
	}, nil
}

type errorResponse struct {
	ErrorType   string `json:"error"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("metrics feed error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("metrics feed error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("metrics feed error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("metrics feed error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("metrics feed error (%d)", status)
}

var _ Source = (*HTTP)(nil)
