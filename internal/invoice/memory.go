package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/inaltera/inaltera/internal/ledger"
)

// MemoryStore is the in-memory invoice Store used in tests.
type MemoryStore struct {
	*ledger.MemoryStore[Payload]
}

// NewMemoryStore creates an empty in-memory invoice store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{MemoryStore: ledger.NewMemoryStore[Payload]()}
}

// FindByDocNumber implements Store.
func (s *MemoryStore) FindByDocNumber(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error) {
	e, err := s.findOriginal(ctx, owner, doc)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *MemoryStore) findOriginal(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error) {
	entries, err := s.ListByOwner(ctx, owner, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Payload.DocNumber == doc && e.Payload.Kind != KindCancellation {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// ClaimCancellation implements Store.
func (s *MemoryStore) ClaimCancellation(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error) {
	orig, err := s.findOriginal(ctx, owner, doc)
	if err != nil {
		return nil, err
	}

	var claimErr error
	var before Entry
	err = s.Update(orig.ID, func(e *ledger.Entry[Payload]) {
		if e.Payload.Status != StatusValid {
			claimErr = ErrAlreadyCancelled
			return
		}
		before = *e
		e.Payload.Status = StatusCancelled
	})
	if err != nil {
		return nil, err
	}
	if claimErr != nil {
		return nil, claimErr
	}
	return &before, nil
}

// ReleaseCancellation implements Store.
func (s *MemoryStore) ReleaseCancellation(_ context.Context, id int64) error {
	return s.Update(id, func(e *ledger.Entry[Payload]) {
		if e.Payload.Status == StatusCancelled {
			e.Payload.Status = StatusValid
		}
	})
}

// SetVerificationRef implements Store.
func (s *MemoryStore) SetVerificationRef(_ context.Context, id int64, ref string) error {
	return s.Update(id, func(e *ledger.Entry[Payload]) { e.Payload.VerificationRef = ref })
}

// SetArtifact implements Store.
func (s *MemoryStore) SetArtifact(_ context.Context, id int64, name string) error {
	return s.Update(id, func(e *ledger.Entry[Payload]) { e.Payload.ArtifactName = name })
}

// DeleteIfTip implements Store.
func (s *MemoryStore) DeleteIfTip(_ context.Context, id int64) error {
	if err := s.RemoveTip(id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrNotTip
		}
		return err
	}
	return nil
}

// MarkArtifactMissing implements Store.
func (s *MemoryStore) MarkArtifactMissing(_ context.Context, id int64) error {
	return s.Update(id, func(e *ledger.Entry[Payload]) { e.Payload.Status = StatusArtifactMissing })
}

// CountIssuedSince implements Store.
func (s *MemoryStore) CountIssuedSince(ctx context.Context, owner uuid.UUID, t time.Time) (int, error) {
	entries, err := s.ListByOwner(ctx, owner, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Payload.Kind == KindIssuance && !e.CreatedAt.Before(t) {
			n++
		}
	}
	return n, nil
}
