package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertItemSQL = `INSERT INTO work_items (
        id,
        queue,
        status,
        payload
    ) VALUES (
        $1,$2,'pending',$3
    );`

	claimNextSQL = `UPDATE work_items
    SET status = 'processing', updated_at = now()
    WHERE id = (
        SELECT id FROM work_items
        WHERE queue = $1
          AND status = 'pending'
        ORDER BY seq
        LIMIT 1
        FOR UPDATE SKIP LOCKED
    )
    RETURNING id, payload;`

	ackItemSQL = `UPDATE work_items
    SET status = $2, reason = $3, updated_at = now()
    WHERE id = $1
      AND status = 'processing';`

	itemExistsSQL = `SELECT EXISTS (SELECT 1 FROM work_items WHERE id = $1);`

	listItemsSQL = `SELECT
        id,
        queue,
        status,
        payload,
        reason,
        created_at,
        updated_at
    FROM work_items
    WHERE queue = $1
      AND ($2 = '' OR status = $2)
    ORDER BY seq DESC
    LIMIT $3;`
)

// Postgres stores work items in the work_items table.
type Postgres struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgres wires a pgx pool into a queue named name.
func NewPostgres(pool *pgxpool.Pool, name string) *Postgres {
	return &Postgres{pool: pool, name: name}
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// Create inserts a pending item.
func (p *Postgres) Create(ctx context.Context, payload any) (string, error) {
	pool, err := p.getPool()
	if err != nil {
		return "", err
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.NewString()
	if _, execErr := pool.Exec(ctx, insertItemSQL, id, p.name, body); execErr != nil {
		return "", fmt.Errorf("insert work item: %w", execErr)
	}
	return id, nil
}

// Next claims the oldest pending item of this queue.
func (p *Postgres) Next(ctx context.Context) (Item, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	var (
		id      string
		payload []byte
	)
	if scanErr := pool.QueryRow(ctx, claimNextSQL, p.name).Scan(&id, &payload); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim work item: %w", scanErr)
	}
	return &postgresItem{queue: p, id: id, payload: payload}, nil
}

// List lists items of this queue, newest first.
func (p *Postgres) List(ctx context.Context, status Status, limit int) ([]Entry, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItemsSQL, p.name, string(status), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list work items: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func (p *Postgres) ack(ctx context.Context, id string, status Status, reason string) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}

	var reasonArg interface{}
	if reason != "" {
		reasonArg = reason
	}

	cmdTag, execErr := pool.Exec(ctx, ackItemSQL, id, string(status), reasonArg)
	if execErr != nil {
		return fmt.Errorf("acknowledge work item: %w", execErr)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if scanErr := pool.QueryRow(ctx, itemExistsSQL, id).Scan(&exists); scanErr != nil {
		return fmt.Errorf("lookup work item: %w", scanErr)
	}
	if !exists {
		return ErrUnknownItem
	}
	return ErrAlreadyAcked
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		id        string
		queueName string
		status    string
		payload   []byte
		reason    sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	if err := rows.Scan(
		&id,
		&queueName,
		&status,
		&payload,
		&reason,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        id,
		Queue:     queueName,
		Status:    Status(status),
		Payload:   json.RawMessage(payload),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if reason.Valid {
		entry.Reason = reason.String
	}
	return entry, nil
}

type postgresItem struct {
	queue   *Postgres
	id      string
	payload []byte
}

func (i *postgresItem) ID() string      { return i.id }
func (i *postgresItem) Payload() []byte { return i.payload }

func (i *postgresItem) Done(ctx context.Context) error {
	return i.queue.ack(ctx, i.id, StatusDone, "")
}

func (i *postgresItem) Fail(ctx context.Context, reason string) error {
	return i.queue.ack(ctx, i.id, StatusFailed, reason)
}

var _ Queue = (*Postgres)(nil)
