package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rate-relay/internal/alerting"
	"rate-relay/internal/config"
	"rate-relay/internal/dispatch"
	"rate-relay/internal/fetcher"
	"rate-relay/internal/logging"
	"rate-relay/internal/metrics"
	"rate-relay/internal/queue"
	"rate-relay/internal/scheduler"
	"rate-relay/internal/service"
	"rate-relay/internal/sink"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// memory backs queue.backend=memory for the lifetime of the process.
	memory *queue.Memory
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logging.Component(logger, "app"),
		Out:    os.Stdout,
	}
}

// ProduceOptions configure a single produce pass.
type ProduceOptions struct {
	// File skips the download and parses a local feed instead.
	File string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Status string
	Limit  int
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	File    string
	PNGPath string
}

func (a *App) newFetcher() *fetcher.HTTP {
	cfg := a.Config.Feed
	return fetcher.NewHTTP(fetcher.HTTPOptions{
		URL:       cfg.URL,
		OutputDir: cfg.OutputDir,
		FileName:  cfg.FileName,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newRecorder() *metrics.Recorder {
	return metrics.NewRecorder(metrics.Options{
		PushgatewayURL: a.Config.Metrics.PushgatewayURL,
		Job:            a.Config.Metrics.Job,
	})
}

func (a *App) pushMetrics(ctx context.Context, rec *metrics.Recorder) {
	if err := rec.Push(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to push metrics")
	}
}

// newNotifier builds the finalize-warning channel. The log channel is always
// present; Telegram and Sentry are added when alerting is enabled.
func (a *App) newNotifier() (alerting.Notifier, func()) {
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	closer := func() {}

	cfg := a.Config.Alerting
	if !cfg.Enabled {
		return notifiers, closer
	}
	if cfg.Telegram.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger))
	}
	if cfg.Sentry.DSN != "" {
		sn, err := alerting.NewSentryNotifier(cfg.Sentry.DSN, a.Config.App.Environment)
		if err != nil {
			a.Logger.Error().Err(err).Msg("sentry disabled")
		} else {
			notifiers = append(notifiers, sn)
			closer = func() { sn.Flush(5 * time.Second) }
		}
	}
	return notifiers, closer
}

func (a *App) sinkOptions() sink.Options {
	return sink.Options{
		Excel: sink.ExcelOptions{
			OutputDir: a.Config.Excel.OutputDir,
			FileName:  a.Config.Excel.FileName,
			Sheet:     a.Config.Excel.Sheet,
			Append:    a.Config.Excel.Append,
		},
		Kafka: sink.KafkaOptions{
			Brokers:      a.Config.Kafka.Brokers,
			Topic:        a.Config.Kafka.Topic,
			Key:          a.Config.Kafka.Key,
			WriteTimeout: a.Config.Kafka.WriteTimeout,
		},
		API: sink.APIOptions{
			Endpoint: a.Config.API.Endpoint,
			Timeout:  a.Config.API.Timeout,
		},
	}
}

// openQueue connects the configured work-item backend.
func (a *App) openQueue(ctx context.Context) (queue.Queue, func(), error) {
	name := a.Config.Queue.Name
	switch a.Config.Queue.Backend {
	case "memory":
		if a.memory == nil {
			a.Logger.Warn().Msg("memory queue selected; items do not outlive the process")
			a.memory = queue.NewMemory(name)
		}
		return a.memory, func() {}, nil
	case "redis":
		if a.Config.Redis.URL == "" {
			return nil, nil, errors.New("redis.url is required for the redis queue backend")
		}
		client, err := queue.ConnectRedis(ctx, a.Config.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		q := queue.NewRedis(client, name)
		return q, func() { _ = q.Close() }, nil
	default:
		if a.Config.Database.DSN == "" {
			return nil, nil, errors.New("database.dsn is required for the postgres queue backend")
		}
		pool, err := queue.NewPool(ctx, a.Config.Database, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		q := queue.NewPostgres(pool, name)
		return q, q.Close, nil
	}
}

// Produce fetches the feed once and queues its records.
func (a *App) Produce(ctx context.Context, opts ProduceOptions) (service.Result, error) {
	q, closeQueue, err := a.openQueue(ctx)
	if err != nil {
		return service.Result{}, err
	}
	defer closeQueue()

	rec := a.newRecorder()
	defer a.pushMetrics(context.WithoutCancel(ctx), rec)

	return a.produceWith(ctx, q, rec, opts)
}

func (a *App) produceWith(ctx context.Context, q queue.Queue, rec *metrics.Recorder, opts ProduceOptions) (service.Result, error) {
	producer := service.NewProducer(a.newFetcher(), q, rec, a.Logger)
	if opts.File != "" {
		return producer.ProduceFile(ctx, opts.File)
	}
	return producer.Produce(ctx)
}

// Consume drains the queue once into the configured sink.
func (a *App) Consume(ctx context.Context) (dispatch.Report, error) {
	q, closeQueue, err := a.openQueue(ctx)
	if err != nil {
		return dispatch.Report{}, err
	}
	defer closeQueue()

	rec := a.newRecorder()
	defer a.pushMetrics(context.WithoutCancel(ctx), rec)

	return a.consumeWith(ctx, q, rec)
}

func (a *App) consumeWith(ctx context.Context, q queue.Queue, rec *metrics.Recorder) (dispatch.Report, error) {
	kind := sink.ParseKind(a.Config.Sink.Kind)
	if kind == sink.KindNone && strings.TrimSpace(a.Config.Sink.Kind) != "" {
		a.Logger.Warn().Str("sink", a.Config.Sink.Kind).Msg("unrecognised sink selector; no sink selected")
	}
	binding, err := sink.Resolve(kind, a.sinkOptions(), a.Logger)
	if err != nil && !errors.Is(err, sink.ErrNoSinkSelected) {
		return dispatch.Report{}, err
	}

	notifier, flush := a.newNotifier()
	defer flush()

	report, err := dispatch.New(q, binding, notifier, rec, a.Logger).Run(ctx)
	if err != nil {
		return report, fmt.Errorf("dispatch: %w", err)
	}
	return report, nil
}

// Run executes produce then consume on every scheduler tick until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	q, closeQueue, err := a.openQueue(ctx)
	if err != nil {
		return err
	}
	defer closeQueue()

	sched, err := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
		RunOnStart:    a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	rec := a.newRecorder()

	a.Logger.Info().Str("sink", sink.ParseKind(a.Config.Sink.Kind).String()).Msg("starting relay")
	err = sched.Run(ctx, func(ctx context.Context, bucket time.Time) error {
		defer a.pushMetrics(context.WithoutCancel(ctx), rec)
		return a.tick(ctx, q, rec)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("relay terminated with error")
		return err
	}

	a.Logger.Info().Msg("relay stopped")
	return nil
}

// tick runs one produce pass followed by one consume pass. A failed produce
// still drains whatever is already queued.
func (a *App) tick(ctx context.Context, q queue.Queue, rec *metrics.Recorder) error {
	_, produceErr := a.produceWith(ctx, q, rec, ProduceOptions{})
	if produceErr != nil {
		a.Logger.Error().Err(produceErr).Msg("produce failed")
	}
	_, consumeErr := a.consumeWith(ctx, q, rec)
	return errors.Join(produceErr, consumeErr)
}

// Migrate applies the postgres queue schema.
func (a *App) Migrate(ctx context.Context) error {
	applied, err := queue.Migrate(a.Config.Database.DSN)
	if err != nil {
		return err
	}
	if applied {
		a.Logger.Info().Msg("queue migrations applied")
	} else {
		a.Logger.Info().Msg("queue schema already up to date")
	}
	return nil
}
