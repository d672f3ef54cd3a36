package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rate-relay/internal/version"
)

// DefaultFeedURL is the published Vietcombank exchange-rate feed.
const DefaultFeedURL = "https://portal.vietcombank.com.vn/Usercontrols/TVPortal.TyGia/pXML.aspx?b=10"

// HTTPOptions parameterise the feed downloader.
type HTTPOptions struct {
	URL       string
	OutputDir string
	FileName  string
	Timeout   time.Duration
	UserAgent string
}

// HTTP downloads the feed over HTTP into a local file.
type HTTP struct {
	opts   HTTPOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTP constructs a feed downloader.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = DefaultFeedURL
	}
	if opts.FileName == "" {
		opts.FileName = "vcb_rate.xml"
	}

	return &HTTP{
		opts:   opts,
		logger: logger.With().Str("component", "feed_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Path is where the downloaded feed is written.
func (h *HTTP) Path() string {
	return filepath.Join(h.opts.OutputDir, h.opts.FileName)
}

// Fetch downloads the feed, replacing any previous copy, and returns its path.
func (h *HTTP) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", parseHTTPError(resp.StatusCode, excerpt)
	}

	path := h.Path()
	if h.opts.OutputDir != "" {
		if err := os.MkdirAll(h.opts.OutputDir, 0o755); err != nil {
			return "", fmt.Errorf("create feed dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".feed-*.xml")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write feed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("replace feed file: %w", err)
	}

	h.logger.Info().Str("path", path).Int64("bytes", n).Msg("feed downloaded")
	return path, nil
}

func parseHTTPError(status int, payload []byte) error {
	if msg := strings.TrimSpace(string(payload)); msg != "" {
		return fmt.Errorf("feed http error (%d): %s", status, msg)
	}
	return fmt.Errorf("feed http error (%d)", status)
}

var _ FeedFetcher = (*HTTP)(nil)
