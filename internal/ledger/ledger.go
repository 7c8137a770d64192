package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by Lookup on a ledger miss.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrConflict is returned by Record when another writer already stored the
	// message id. Callers treat it as a hit.
	ErrConflict = errors.New("ledger: entry already recorded")
)

// Entry is the cached outcome of one inbound provider message.
type Entry struct {
	MessageID   string
	Result      []byte
	ProcessedAt time.Time
}

// Store is the idempotency ledger keyed by provider message id.
type Store interface {
	Lookup(ctx context.Context, messageID string) (*Entry, error)
	Record(ctx context.Context, messageID string, result []byte) error
}

// MemoryStore is an in-process ledger for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

func (s *MemoryStore) Lookup(ctx context.Context, messageID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	entry.Result = append([]byte(nil), entry.Result...)
	return &entry, nil
}

func (s *MemoryStore) Record(ctx context.Context, messageID string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[messageID]; exists {
		return ErrConflict
	}
	s.entries[messageID] = Entry{
		MessageID:   messageID,
		Result:      append([]byte(nil), result...),
		ProcessedAt: s.now().UTC(),
	}
	return nil
}

// Len reports how many message ids have been recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
