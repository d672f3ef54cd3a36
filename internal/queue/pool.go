package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"rate-relay/internal/config"
)

// NewPool configures a PostgreSQL connection pool and waits until the server
// answers a ping or cfg.ConnectTimeout elapses.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	bf := backoff.NewExponentialBackOff()
	bf.InitialInterval = 500 * time.Millisecond
	bf.MaxInterval = 5 * time.Second
	bf.MaxElapsedTime = cfg.ConnectTimeout
	if bf.MaxElapsedTime <= 0 {
		bf.MaxElapsedTime = 30 * time.Second
	}

	log := logger.With().Str("component", "queue_pool").Logger()
	ping := func() error {
		if err := pool.Ping(ctx); err != nil {
			log.Debug().Err(err).Msg("postgres not ready yet")
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(bf, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
