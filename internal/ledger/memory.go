package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation used in tests
// and single-process deployments without durable persistence.
type MemoryStore[P Payload] struct {
	mu      sync.RWMutex
	entries []*Entry[P]
}

// NewMemoryStore creates an empty MemoryStore. The first appended entry gets
// ID 1 and links to the genesis constant via the Service.
func NewMemoryStore[P Payload]() *MemoryStore[P] {
	return &MemoryStore[P]{}
}

// LastEntry implements Store.
func (s *MemoryStore[P]) LastEntry(_ context.Context) (*Entry[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, ErrEmpty
	}
	return copyEntry(s.entries[len(s.entries)-1]), nil
}

// Append implements Store. The tail check mirrors what the Postgres stores do
// under their advisory lock, so concurrency tests exercise the same
// ErrConcurrentAppend path the production stores have.
func (s *MemoryStore[P]) Append(_ context.Context, e *Entry[P]) (*Entry[P], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip := ""
	if n := len(s.entries); n > 0 {
		tip = s.entries[n-1].CurrentHash
	}
	if tip != "" && e.PrevHash != tip {
		return nil, ErrConcurrentAppend
	}

	stored := copyEntry(e)
	stored.ID = int64(len(s.entries)) + 1
	stored.CreatedAt = time.Now().UTC()
	s.entries = append(s.entries, stored)
	return copyEntry(stored), nil
}

// Get implements Store.
func (s *MemoryStore[P]) Get(_ context.Context, id int64) (*Entry[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.entries)) {
		return nil, ErrNotFound
	}
	return copyEntry(s.entries[id-1]), nil
}

// Range implements Store.
func (s *MemoryStore[P]) Range(_ context.Context, from, to int64) ([]*Entry[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < 1 {
		from = 1
	}
	if to > int64(len(s.entries)) {
		to = int64(len(s.entries))
	}
	var out []*Entry[P]
	for id := from; id <= to; id++ {
		out = append(out, copyEntry(s.entries[id-1]))
	}
	return out, nil
}

// FindByHash implements Store. Exact match only.
func (s *MemoryStore[P]) FindByHash(_ context.Context, hash string) (*Entry[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.CurrentHash == hash {
			return copyEntry(e), nil
		}
	}
	return nil, ErrNotFound
}

// ListByOwner implements Store.
func (s *MemoryStore[P]) ListByOwner(_ context.Context, owner uuid.UUID, limit int) ([]*Entry[P], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry[P]
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Payload.OwnerID() == owner {
			out = append(out, copyEntry(s.entries[i]))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Update applies fn to the stored entry with the given ID in place.
// It exists so tests can simulate tampering with persisted rows and so
// ledger-specific stores built on MemoryStore can flip non-hashed fields.
func (s *MemoryStore[P]) Update(id int64, fn func(*Entry[P])) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || id > int64(len(s.entries)) {
		return ErrNotFound
	}
	fn(s.entries[id-1])
	return nil
}

// RemoveTip deletes the entry with the given ID only if it is still the chain
// tip. Used for the bounded artifact compensation; any other deletion would
// break a confirmed chain link.
func (s *MemoryStore[P]) RemoveTip(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.entries))
	if n == 0 || id != n {
		return ErrNotFound
	}
	s.entries = s.entries[:n-1]
	return nil
}

func copyEntry[P Payload](e *Entry[P]) *Entry[P] {
	c := *e
	return &c
}
