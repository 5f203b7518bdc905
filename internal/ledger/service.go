package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/hashchain"
)

// appendRetries bounds how many times Record redoes the read-compute-append
// sequence after losing an append race to another process.
const appendRetries = 5

// Service owns the read-compute-append sequence for one ledger instance.
//
// The chain tip is the only contended resource. Record serializes on a
// per-instance mutex so two in-process callers can never read the same tip
// and both append against the same prev_hash; across processes the store's
// Append detects the race and Record retries against the new tip. Reads run
// concurrently with each other and with appends.
type Service[P Payload] struct {
	name   string
	store  Store[P]
	logger *zap.Logger

	mu sync.Mutex
}

// NewService creates a ledger Service. name identifies the instance in logs
// ("invoices", "events").
func NewService[P Payload](name string, store Store[P], logger *zap.Logger) *Service[P] {
	return &Service[P]{name: name, store: store, logger: logger}
}

// Record appends a new entry linked to the current chain tip.
//
// If it returns without error, the entry is durably persisted and verifiably
// linked to the tip as of the moment the tip was read. Cancellation semantics
// are forward-only: a Record that already committed cannot be undone by the
// caller's context ending.
func (s *Service[P]) Record(ctx context.Context, p P) (*Entry[P], error) {
	payload := p.CanonicalBytes()

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < appendRetries; attempt++ {
		prevHash := hashchain.Genesis
		last, err := s.store.LastEntry(ctx)
		switch {
		case err == nil:
			prevHash = last.CurrentHash
		case errors.Is(err, ErrEmpty):
			// first entry of the chain
		default:
			return nil, fmt.Errorf("read %s ledger tip: %w", s.name, err)
		}

		e := &Entry[P]{
			Payload:     p,
			PrevHash:    prevHash,
			CurrentHash: hashchain.Compute(payload, prevHash),
		}

		stored, err := s.store.Append(ctx, e)
		if errors.Is(err, ErrConcurrentAppend) {
			s.logger.Debug("append lost race, retrying against new tip",
				zap.String("ledger", s.name),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("append %s ledger entry: %w", s.name, err)
		}

		s.logger.Debug("ledger entry appended",
			zap.String("ledger", s.name),
			zap.Int64("id", stored.ID),
			zap.String("hash", stored.CurrentHash),
		)
		return stored, nil
	}
	return nil, fmt.Errorf("append %s ledger entry: %w", s.name, ErrConcurrentAppend)
}

// VerifyChain recomputes every hash in [from, to] from stored payload bytes
// and prev_hash and checks linkage between adjacent entries. It
// short-circuits at the first mismatch, reporting the first tampered ID via
// IntegrityError. from < 1 is clamped; to <= 0 means the current tip.
func (s *Service[P]) VerifyChain(ctx context.Context, from, to int64) error {
	if from < 1 {
		from = 1
	}
	if to <= 0 {
		last, err := s.store.LastEntry(ctx)
		if errors.Is(err, ErrEmpty) {
			return nil // empty chain is trivially intact
		}
		if err != nil {
			return fmt.Errorf("read %s ledger tip: %w", s.name, err)
		}
		to = last.ID
	}

	// Include the predecessor of `from` so linkage at the lower bound is
	// checked too. When from is the first entry, linkage is against Genesis.
	lo := from
	if lo > 1 {
		lo--
	}
	entries, err := s.store.Range(ctx, lo, to)
	if err != nil {
		return fmt.Errorf("read %s ledger range [%d,%d]: %w", s.name, lo, to, err)
	}

	var prev *Entry[P]
	for _, curr := range entries {
		if prev == nil && curr.ID == 1 {
			if curr.PrevHash != hashchain.Genesis {
				return &IntegrityError{ID: curr.ID, Reason: "first entry does not link to genesis"}
			}
		}
		if prev != nil {
			if curr.ID != prev.ID+1 {
				return &IntegrityError{ID: curr.ID, Reason: fmt.Sprintf("sequence gap after entry %d", prev.ID)}
			}
			if curr.PrevHash != prev.CurrentHash {
				return &IntegrityError{ID: curr.ID, Reason: "prev_hash does not match predecessor"}
			}
		}
		if curr.ID >= from {
			want := hashchain.Compute(curr.Payload.CanonicalBytes(), curr.PrevHash)
			if want != curr.CurrentHash {
				return &IntegrityError{ID: curr.ID, Reason: "stored hash does not match recomputation"}
			}
		}
		prev = curr
	}
	return nil
}

// FindByHash returns the entry with exactly the given current_hash.
func (s *Service[P]) FindByHash(ctx context.Context, hash string) (*Entry[P], error) {
	return s.store.FindByHash(ctx, hash)
}

// Get returns the entry with the given ID.
func (s *Service[P]) Get(ctx context.Context, id int64) (*Entry[P], error) {
	return s.store.Get(ctx, id)
}

// ListByOwner returns the owner's entries, most recent first.
func (s *Service[P]) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]*Entry[P], error) {
	return s.store.ListByOwner(ctx, owner, limit)
}

// Head returns the chain tip, or ErrEmpty.
func (s *Service[P]) Head(ctx context.Context) (*Entry[P], error) {
	return s.store.LastEntry(ctx)
}
