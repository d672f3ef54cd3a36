package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes a Redis client from a redis:// URL or host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis.url is required")
	}

	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Redis keeps item ids in one list per status and item bodies in hashes.
type Redis struct {
	client *redis.Client
	name   string
}

// NewRedis wires a Redis client into a queue named name.
func NewRedis(client *redis.Client, name string) *Redis {
	return &Redis{client: client, name: name}
}

// Close releases the Redis client.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *Redis) statusKey(status Status) string {
	return fmt.Sprintf("raterelay:%s:%s", r.name, status)
}

func itemKey(id string) string {
	return "raterelay:item:" + id
}

func (r *Redis) getClient() (*redis.Client, error) {
	if r == nil || r.client == nil {
		return nil, ErrNotConfigured
	}
	return r.client, nil
}

// Create stores the item body and appends its id to the pending list.
func (r *Redis) Create(ctx context.Context, payload any) (string, error) {
	client, err := r.getClient()
	if err != nil {
		return "", err
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, itemKey(id),
			"queue", r.name,
			"status", string(StatusPending),
			"payload", string(body),
			"created_at", now,
			"updated_at", now,
		)
		p.RPush(ctx, r.statusKey(StatusPending), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create work item: %w", err)
	}
	return id, nil
}

// Next moves the oldest pending id to the processing list.
func (r *Redis) Next(ctx context.Context) (Item, error) {
	client, err := r.getClient()
	if err != nil {
		return nil, err
	}

	keys, args := r.claimArgs(time.Now())
	res, err := claimScript.Run(ctx, client, keys, args...).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim work item: %w", err)
	}
	return claimedItem(r, res)
}

// claimScript moves the oldest pending id to processing and marks its hash in
// one step, so a crash cannot leave an id in processing with a pending hash.
// KEYS: pending list, processing list. ARGV: item key prefix, status, timestamp.
var claimScript = redis.NewScript(`
local id = redis.call('LMOVE', KEYS[1], KEYS[2], 'LEFT', 'RIGHT')
if not id then
	return false
end
local key = ARGV[1] .. id
redis.call('HSET', key, 'status', ARGV[2], 'updated_at', ARGV[3])
local payload = redis.call('HGET', key, 'payload')
return {id, payload}
`)

func (r *Redis) claimArgs(now time.Time) ([]string, []interface{}) {
	keys := []string{r.statusKey(StatusPending), r.statusKey(StatusProcessing)}
	args := []interface{}{itemKey(""), string(StatusProcessing), now.UTC().Format(time.RFC3339Nano)}
	return keys, args
}

func claimedItem(r *Redis, res []interface{}) (Item, error) {
	if len(res) == 0 {
		return nil, errors.New("claim work item: empty script reply")
	}
	id, ok := res[0].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("claim work item: unexpected id %v", res[0])
	}
	var payload string
	if len(res) > 1 {
		payload, _ = res[1].(string)
	}
	return &redisItem{queue: r, id: id, payload: []byte(payload)}, nil
}

// List reads ids from the status lists, newest first.
func (r *Redis) List(ctx context.Context, status Status, limit int) ([]Entry, error) {
	client, err := r.getClient()
	if err != nil {
		return nil, err
	}

	statuses := []Status{status}
	if status == "" {
		statuses = Statuses
	}

	entries := make([]Entry, 0)
	for _, st := range statuses {
		ids, err := client.LRange(ctx, r.statusKey(st), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list %s ids: %w", st, err)
		}
		for i := len(ids) - 1; i >= 0; i-- {
			fields, err := client.HGetAll(ctx, itemKey(ids[i])).Result()
			if err != nil {
				return nil, fmt.Errorf("load work item %s: %w", ids[i], err)
			}
			if len(fields) == 0 {
				continue
			}
			entries = append(entries, entryFromHash(ids[i], fields))
		}
	}

	sortNewestFirst(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *Redis) ack(ctx context.Context, id string, status Status, reason string) error {
	client, err := r.getClient()
	if err != nil {
		return err
	}

	removed, err := client.LRem(ctx, r.statusKey(StatusProcessing), 1, id).Result()
	if err != nil {
		return fmt.Errorf("acknowledge work item: %w", err)
	}
	if removed == 0 {
		exists, err := client.Exists(ctx, itemKey(id)).Result()
		if err != nil {
			return fmt.Errorf("lookup work item: %w", err)
		}
		if exists == 0 {
			return ErrUnknownItem
		}
		return ErrAlreadyAcked
	}

	_, err = client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, itemKey(id),
			"status", string(status),
			"reason", reason,
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		p.RPush(ctx, r.statusKey(status), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("acknowledge work item: %w", err)
	}
	return nil
}

func entryFromHash(id string, fields map[string]string) Entry {
	entry := Entry{
		ID:      id,
		Queue:   fields["queue"],
		Status:  Status(fields["status"]),
		Payload: json.RawMessage(fields["payload"]),
		Reason:  fields["reason"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		entry.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		entry.UpdatedAt = ts
	}
	return entry
}

type redisItem struct {
	queue   *Redis
	id      string
	payload []byte
}

func (i *redisItem) ID() string      { return i.id }
func (i *redisItem) Payload() []byte { return i.payload }

func (i *redisItem) Done(ctx context.Context) error {
	return i.queue.ack(ctx, i.id, StatusDone, "")
}

func (i *redisItem) Fail(ctx context.Context, reason string) error {
	return i.queue.ack(ctx, i.id, StatusFailed, reason)
}

var _ Queue = (*Redis)(nil)
