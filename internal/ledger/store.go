package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Store is durable, strictly ordered storage for one ledger instance.
//
// Append must be atomic with respect to concurrent appenders: two callers
// must never both commit an entry carrying the same PrevHash. A store detects
// the race (advisory lock plus tail check, or equivalent) and fails the loser
// with ErrConcurrentAppend.
type Store[P Payload] interface {
	// LastEntry returns the entry with the greatest ID, or ErrEmpty.
	LastEntry(ctx context.Context) (*Entry[P], error)

	// Append assigns the next dense ID and CreatedAt, persists the entry,
	// and returns it fully populated.
	Append(ctx context.Context, e *Entry[P]) (*Entry[P], error)

	// Get returns the entry with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Entry[P], error)

	// Range returns entries with from <= ID <= to, ordered by ID ascending.
	Range(ctx context.Context, from, to int64) ([]*Entry[P], error)

	// FindByHash returns the entry whose CurrentHash equals hash exactly,
	// or ErrNotFound. No partial matching.
	FindByHash(ctx context.Context, hash string) (*Entry[P], error)

	// ListByOwner returns the owner's entries, most recent first.
	// limit <= 0 means no limit.
	ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]*Entry[P], error)
}
