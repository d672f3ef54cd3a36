package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"rate-relay/internal/feed"
)

// KafkaOptions configure the broker sink.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	Key          string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dialFunc func(opts KafkaOptions) messageWriter

// Kafka publishes records as JSON. It owns at most one writer at a time: the
// writer is opened on first push and released by Finalize.
type Kafka struct {
	opts   KafkaOptions
	logger zerolog.Logger
	dial   dialFunc
	writer messageWriter
	warned bool
}

// NewKafka constructs a broker sink; no connection is made until the first push.
func NewKafka(opts KafkaOptions, logger zerolog.Logger) *Kafka {
	if opts.Topic == "" {
		opts.Topic = "rate_data"
	}
	if opts.Key == "" {
		opts.Key = "ExchangeRate"
	}
	return &Kafka{
		opts:   opts,
		logger: logger.With().Str("component", "kafka_sink").Logger(),
		dial:   newKafkaWriter,
	}
}

func newKafkaWriter(opts KafkaOptions) messageWriter {
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Topic:                  opts.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}
}

// connection returns the live writer, opening one if needed. It returns nil
// when no brokers are configured.
func (k *Kafka) connection() messageWriter {
	if k.writer != nil {
		return k.writer
	}
	if len(k.opts.Brokers) == 0 {
		return nil
	}
	k.writer = k.dial(k.opts)
	k.logger.Debug().Strs("brokers", k.opts.Brokers).Str("topic", k.opts.Topic).Msg("kafka writer opened")
	return k.writer
}

// Push writes rec to the topic and waits for the broker acknowledgement.
// Without brokers it does nothing.
func (k *Kafka) Push(ctx context.Context, rec feed.RateRecord) error {
	w := k.connection()
	if w == nil {
		if !k.warned {
			k.logger.Warn().Msg("kafka brokers not configured; records are not published")
			k.warned = true
		}
		return nil
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(k.opts.Key),
		Value: value,
		Time:  time.Now().UTC(),
	})
}

// Finalize closes the writer, flushing anything still buffered, and forgets it
// so a later push opens a new one.
func (k *Kafka) Finalize(ctx context.Context) error {
	if k.writer == nil {
		return nil
	}
	w := k.writer
	k.writer = nil
	if err := w.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
