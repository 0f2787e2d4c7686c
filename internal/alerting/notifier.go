package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries everything known at fire time: the entity, the
// rule that fired, the score with its display band, and the metrics
// that triggered the rule.
type Notification struct {
	Entity     string
	RuleID     string
	RuleKind   string
	FiredAt    time.Time
	Score      float64
	Band       string
	Liquidity  decimal.Decimal
	Holders    int64
	FreshPct   float64
	SniperPct  float64
	InsiderPct float64
	Top10Pct   float64
}

// Notifier delivers a fired alert to a human-facing channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes alert messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered message via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("entity", note.Entity).
		Str("rule", note.RuleID).
		Msg("alert dispatched via telegram")
	return nil
}

// RenderMessage formats a fired alert for human consumption.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", strings.ToUpper(note.RuleKind), note.Entity))
	builder.WriteString(fmt.Sprintf("Fired: %s UTC\n", note.FiredAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Score: %.1f (%s)\n", note.Score, note.Band))
	builder.WriteString(fmt.Sprintf("Liquidity: $%s | Holders: %d\n", note.Liquidity.StringFixed(0), note.Holders))
	builder.WriteString(fmt.Sprintf(
		"Fresh: %.0f%% | Snipers: %.0f%% | Insiders: %.0f%% | Top10: %.0f%%\n",
		note.FreshPct*100, note.SniperPct*100, note.InsiderPct*100, note.Top10Pct*100,
	))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
