// Package queue is the durable work-item queue between the producer and the
// dispatch loop. Every backend hands out items in creation order and expects
// exactly one of Done or Fail per claimed item.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusDone, StatusFailed}

var (
	// ErrNotConfigured indicates the backend connection was not initialised.
	ErrNotConfigured = errors.New("queue: backend not configured")
	// ErrAlreadyAcked is returned by Done/Fail on an item that is no longer processing.
	ErrAlreadyAcked = errors.New("queue: item already acknowledged")
	// ErrUnknownItem is returned when an item id does not exist.
	ErrUnknownItem = errors.New("queue: unknown item")
	// ErrUnknownStatus is returned by List for an unrecognised status filter.
	ErrUnknownStatus = errors.New("queue: unknown status")
)

// ParseStatus validates a status name. Empty input means "any status".
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusPending, StatusProcessing, StatusDone, StatusFailed:
		return Status(s), nil
	default:
		return "", ErrUnknownStatus
	}
}

// Item is a claimed work item.
type Item interface {
	ID() string
	Payload() []byte
	Done(ctx context.Context) error
	Fail(ctx context.Context, reason string) error
}

// Entry is a read-only view of a stored item.
type Entry struct {
	ID        string
	Queue     string
	Status    Status
	Payload   json.RawMessage
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Queue is implemented by every backend.
type Queue interface {
	// Create marshals payload to JSON and appends it as a pending item.
	Create(ctx context.Context, payload any) (string, error)
	// Next claims the oldest pending item. It returns (nil, nil) once drained.
	Next(ctx context.Context) (Item, error)
	// List returns up to limit items with the given status, newest first.
	// An empty status lists every item.
	List(ctx context.Context, status Status, limit int) ([]Entry, error)
}

func marshalPayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
