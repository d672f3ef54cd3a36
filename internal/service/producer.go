package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rate-relay/internal/feed"
	"rate-relay/internal/fetcher"
	"rate-relay/internal/metrics"
	"rate-relay/internal/queue"
)

// Result summarises one produce pass.
type Result struct {
	RateDate string
	Parsed   int
	Emitted  int
}

// Producer runs the fetch, parse and emit half of the pipeline.
type Producer struct {
	fetcher fetcher.FeedFetcher
	queue   queue.Queue
	metrics *metrics.Recorder
	logger  zerolog.Logger
}

// NewProducer constructs a producer. fetcher may be nil when only ProduceFile is used.
func NewProducer(f fetcher.FeedFetcher, q queue.Queue, rec *metrics.Recorder, logger zerolog.Logger) *Producer {
	return &Producer{
		fetcher: f,
		queue:   q,
		metrics: rec,
		logger:  logger.With().Str("component", "producer").Logger(),
	}
}

// Produce downloads the feed and emits its records.
func (p *Producer) Produce(ctx context.Context) (Result, error) {
	if p.fetcher == nil {
		return Result{}, errors.New("feed fetcher not configured")
	}
	path, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch feed: %w", err)
	}
	return p.ProduceFile(ctx, path)
}

// ProduceFile parses a local feed file and emits its records. A feed without
// a rate date emits nothing and is not an error.
func (p *Producer) ProduceFile(ctx context.Context, path string) (Result, error) {
	batch, err := feed.ParseFile(path)
	if errors.Is(err, feed.ErrNoRateDate) {
		p.logger.Warn().Str("path", path).Msg("no rate date found; nothing emitted")
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{RateDate: batch.RateDate, Parsed: len(batch.Records)}
	emitted, err := p.Emit(ctx, batch)
	res.Emitted = emitted
	if err != nil {
		return res, err
	}

	p.logger.Info().
		Str("rate_date", res.RateDate).
		Int("records", res.Emitted).
		Msg("feed emitted")
	return res, nil
}

// Emit queues one work item per record, stamped with the batch rate date.
// It stops at the first queue failure; items created before it stay queued.
func (p *Producer) Emit(ctx context.Context, batch feed.Batch) (int, error) {
	if p.queue == nil {
		return 0, queue.ErrNotConfigured
	}
	emitted := 0
	for _, rec := range batch.Records {
		rec = rec.WithRateDate(batch.RateDate)
		id, err := p.queue.Create(ctx, rec)
		if err != nil {
			return emitted, fmt.Errorf("queue record %s: %w", rec.CurrencyCode, err)
		}
		emitted++
		p.metrics.Emitted()
		p.logger.Debug().Str("id", id).Str("currency", rec.CurrencyCode).Msg("record queued")
	}
	return emitted, nil
}
