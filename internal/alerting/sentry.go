package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryNotifier captures warnings as Sentry events on a private hub.
type SentryNotifier struct {
	hub *sentry.Hub
}

// NewSentryNotifier creates a Sentry client for dsn.
func NewSentryNotifier(dsn, environment string) (*SentryNotifier, error) {
	if dsn == "" {
		return nil, errors.New("sentry dsn is required")
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("create sentry client: %w", err)
	}
	return &SentryNotifier{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Notify captures w.Err tagged with the sink and stage.
func (n *SentryNotifier) Notify(ctx context.Context, w Warning) error {
	err := w.Err
	if err == nil {
		err = errors.New("unspecified sink warning")
	}

	n.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("sink", w.Sink)
		scope.SetTag("stage", w.Stage)
		scope.SetContext("batch", map[string]interface{}{
			"done":   w.Done,
			"failed": w.Failed,
		})
		n.hub.CaptureException(err)
	})
	return nil
}

// Flush waits for buffered events to be delivered.
func (n *SentryNotifier) Flush(timeout time.Duration) bool {
	return n.hub.Flush(timeout)
}

var _ Notifier = (*SentryNotifier)(nil)
