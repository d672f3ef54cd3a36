package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Warning describes a best-effort step that failed after items were already
// acknowledged, such as a sink finalize.
type Warning struct {
	Sink   string
	Stage  string
	Err    error
	Done   int
	Failed int
	At     time.Time
}

// Notifier delivers warnings to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, warning Warning) error
}

// LogNotifier writes warnings to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a notifier that only logs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the warning at warn level.
func (n *LogNotifier) Notify(ctx context.Context, w Warning) error {
	n.logger.Warn().Err(w.Err).
		Str("sink", w.Sink).
		Str("stage", w.Stage).
		Int("done", w.Done).
		Int("failed", w.Failed).
		Msg("sink warning")
	return nil
}

// Multi fans a warning out to every notifier and joins their errors.
type Multi []Notifier

// Notify calls every non-nil notifier.
func (m Multi) Notify(ctx context.Context, w Warning) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier pushes warnings through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
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

// Notify calls sendMessage with a rendered warning.
func (n *TelegramNotifier) Notify(ctx context.Context, w Warning) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(w),
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("sink", w.Sink).Str("stage", w.Stage).Msg("warning sent (Telegram)")
	return nil
}

func renderMessage(w Warning) string {
	builder := strings.Builder{}
	builder.WriteString("[Rate Relay Warning]\n")
	at := w.At
	if at.IsZero() {
		at = time.Now()
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", at.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Sink: %s\n", w.Sink))
	builder.WriteString(fmt.Sprintf("Stage: %s\n", w.Stage))
	builder.WriteString(fmt.Sprintf("Items: %d done, %d failed\n", w.Done, w.Failed))
	if w.Err != nil {
		builder.WriteString(fmt.Sprintf("Error: %s\n", w.Err.Error()))
	}
	return builder.String()
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = Multi(nil)
)
