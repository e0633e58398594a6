// Package history keeps an append-only record of confirmed on-chain actions.
// Session state itself is never persisted; only completed transactions are.
package history

import (
	"context"
	"sync"
	"time"
)

// Entry is one confirmed transaction.
type Entry struct {
	Kind      string    `json:"kind"` // approve | mint | free-mint
	TxHash    string    `json:"txHash"`
	Address   string    `json:"address"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store abstracts history persistence.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// MemoryStore is mostly for testing and DSN-less runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, limit)
	// Newest first.
	for i := 0; i < limit; i++ {
		out[i] = m.entries[len(m.entries)-1-i]
	}
	return out, nil
}
