package event

import (
	"context"
	"sync"

	"github.com/inaltera/inaltera/internal/ledger"
)

// Failure is a persisted marker for an event that could not be appended.
type Failure struct {
	Payload Payload
	Cause   string
}

// MemoryStore is the in-memory audit Store used in tests.
type MemoryStore struct {
	*ledger.MemoryStore[Payload]

	mu       sync.Mutex
	failures []Failure
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{MemoryStore: ledger.NewMemoryStore[Payload]()}
}

// RecordFailure implements Store.
func (s *MemoryStore) RecordFailure(_ context.Context, p Payload, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, Failure{Payload: p, Cause: cause})
	return nil
}

// Failures returns a copy of the recorded failure markers.
func (s *MemoryStore) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}
