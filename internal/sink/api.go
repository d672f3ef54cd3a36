package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rate-relay/internal/feed"
	"rate-relay/internal/version"
)

// APIOptions configure the HTTP sink.
type APIOptions struct {
	Endpoint string
	Timeout  time.Duration
}

// API posts each record as JSON to an HTTP endpoint. With no endpoint it is a
// placeholder that accepts and drops records.
type API struct {
	opts   APIOptions
	client *http.Client
	logger zerolog.Logger
}

// NewAPI constructs the HTTP sink.
func NewAPI(opts APIOptions, logger zerolog.Logger) *API {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &API{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "api_sink").Logger(),
	}
}

// Push sends rec to the endpoint; any non-2xx response is an error.
func (a *API) Push(ctx context.Context, rec feed.RateRecord) error {
	endpoint := strings.TrimSpace(a.opts.Endpoint)
	if endpoint == "" {
		a.logger.Debug().Str("currency", rec.CurrencyCode).Msg("api endpoint not configured; record dropped")
		return nil
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if msg := strings.TrimSpace(string(excerpt)); msg != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}
	return nil
}
