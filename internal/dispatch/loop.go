// Package dispatch drains the work-item queue into the selected sink.
//
// Items are handled strictly one at a time in queue order. Every claimed item
// is acknowledged exactly once: done when the push succeeded, failed with the
// push error otherwise. The sink is finalized once after the queue drains,
// even when the loop stops early, and a finalize failure is reported as a
// warning instead of an error.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rate-relay/internal/alerting"
	"rate-relay/internal/feed"
	"rate-relay/internal/metrics"
	"rate-relay/internal/queue"
	"rate-relay/internal/sink"
)

// ErrNotRecord prefixes the failure reason of payloads that do not decode to
// a rate record. The decode error follows it, so a missing currency_code is
// told apart from a payload that is not an object.
var ErrNotRecord = errors.New("payload is not a structured record")

// Report summarises one dispatch run.
type Report struct {
	Sink        string
	Done        int
	Failed      int
	// Skipped counts items failed without a push because their payload did
	// not decode to a rate record. They are not included in Failed.
	Skipped     int
	FinalizeErr error
}

// Loop is a one-shot dispatch run bound to a single sink.
type Loop struct {
	queue    queue.Queue
	binding  sink.Binding
	notifier alerting.Notifier
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a dispatch loop. notifier and rec may be nil.
func New(q queue.Queue, binding sink.Binding, notifier alerting.Notifier, rec *metrics.Recorder, logger zerolog.Logger) *Loop {
	return &Loop{
		queue:    q,
		binding:  binding,
		notifier: notifier,
		metrics:  rec,
		logger:   logger.With().Str("component", "dispatch").Str("sink", binding.Kind.String()).Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run drains the queue. With no sink selected it returns at once and leaves
// every item pending. The returned error reports queue failures only; push
// failures are recorded on the items and finalize failures on the report.
func (l *Loop) Run(ctx context.Context) (report Report, err error) {
	report.Sink = l.binding.Kind.String()

	if l.binding.Kind == sink.KindNone {
		l.logger.Info().Msg("no sink selected; queue left untouched")
		return report, nil
	}
	if l.queue == nil {
		return report, queue.ErrNotConfigured
	}
	if l.binding.Push == nil {
		return report, fmt.Errorf("sink %s has no push function", report.Sink)
	}

	defer func() {
		if l.binding.Finalize == nil {
			return
		}
		fctx := context.WithoutCancel(ctx)
		if ferr := l.binding.Finalize(fctx); ferr != nil {
			report.FinalizeErr = ferr
			l.warn(fctx, report, ferr)
		}
	}()

	for {
		item, err := l.queue.Next(ctx)
		if err != nil {
			return report, fmt.Errorf("claim next item: %w", err)
		}
		if item == nil {
			break
		}
		l.handle(ctx, item, &report)
	}

	l.logger.Info().
		Int("done", report.Done).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("queue drained")
	return report, nil
}

func notRecordReason(err error) string {
	return fmt.Errorf("%w: %w", ErrNotRecord, err).Error()
}

func (l *Loop) handle(ctx context.Context, item queue.Item, report *Report) {
	logger := l.logger.With().Str("item", item.ID()).Logger()

	rec, err := feed.DecodeRecord(item.Payload())
	if err != nil {
		logger.Warn().Err(err).Msg("payload is not a rate record; failing item")
		l.ack(logger, item.Fail(ctx, notRecordReason(err)))
		report.Skipped++
		l.metrics.Dispatched(report.Sink, metrics.OutcomeSkipped)
		return
	}

	start := time.Now()
	pushErr := l.binding.Push(ctx, rec)
	l.metrics.ObservePush(report.Sink, time.Since(start))

	if pushErr != nil {
		logger.Error().Err(pushErr).Str("currency", rec.CurrencyCode).Msg("push failed")
		l.ack(logger, item.Fail(ctx, pushErr.Error()))
		report.Failed++
		l.metrics.Dispatched(report.Sink, metrics.OutcomeFailed)
		return
	}

	l.ack(logger, item.Done(ctx))
	report.Done++
	l.metrics.Dispatched(report.Sink, metrics.OutcomeDone)
}

func (l *Loop) ack(logger zerolog.Logger, err error) {
	if err != nil {
		logger.Error().Err(err).Msg("failed to acknowledge item")
	}
}

func (l *Loop) warn(ctx context.Context, report Report, err error) {
	l.metrics.FinalizeWarning(report.Sink)
	if l.notifier == nil {
		l.logger.Warn().Err(err).Msg("sink finalize failed")
		return
	}
	w := alerting.Warning{
		Sink:   report.Sink,
		Stage:  "finalize",
		Err:    err,
		Done:   report.Done,
		Failed: report.Failed,
		At:     l.now(),
	}
	if nerr := l.notifier.Notify(ctx, w); nerr != nil {
		l.logger.Error().Err(nerr).AnErr("finalize_err", err).Msg("failed to deliver finalize warning")
	}
}
