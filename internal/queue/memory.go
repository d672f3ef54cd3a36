package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process queue. Items do not survive a restart.
type Memory struct {
	name    string
	mu      sync.Mutex
	entries []*Entry
	now     func() time.Time
}

// NewMemory builds an empty in-memory queue.
func NewMemory(name string) *Memory {
	return &Memory{name: name, now: func() time.Time { return time.Now().UTC() }}
}

// Create appends a pending item.
func (m *Memory) Create(ctx context.Context, payload any) (string, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := &Entry{
		ID:        uuid.NewString(),
		Queue:     m.name,
		Status:    StatusPending,
		Payload:   append([]byte(nil), body...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

// Next claims the oldest pending item.
func (m *Memory) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if entry.Status != StatusPending {
			continue
		}
		entry.Status = StatusProcessing
		entry.UpdatedAt = m.now()
		return &memoryItem{queue: m, id: entry.ID, payload: entry.Payload}, nil
	}
	return nil, nil
}

// List returns entries matching status, newest first.
func (m *Memory) List(ctx context.Context, status Status, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Entry, 0)
	for i := len(m.entries) - 1; i >= 0; i-- {
		entry := m.entries[i]
		if status != "" && entry.Status != status {
			continue
		}
		result = append(result, *entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Len reports the number of items in the given status.
func (m *Memory) Len(status Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, entry := range m.entries {
		if entry.Status == status {
			n++
		}
	}
	return n
}

func (m *Memory) ack(id string, status Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if entry.ID != id {
			continue
		}
		if entry.Status != StatusProcessing {
			return ErrAlreadyAcked
		}
		entry.Status = status
		entry.Reason = reason
		entry.UpdatedAt = m.now()
		return nil
	}
	return ErrUnknownItem
}

type memoryItem struct {
	queue   *Memory
	id      string
	payload []byte
}

func (i *memoryItem) ID() string      { return i.id }
func (i *memoryItem) Payload() []byte { return i.payload }

func (i *memoryItem) Done(ctx context.Context) error {
	return i.queue.ack(i.id, StatusDone, "")
}

func (i *memoryItem) Fail(ctx context.Context, reason string) error {
	return i.queue.ack(i.id, StatusFailed, reason)
}

var _ Queue = (*Memory)(nil)
