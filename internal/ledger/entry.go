package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the ledger-specific content of an entry.
//
// CanonicalBytes must be a byte-stable serialization of the fields covered by
// the entry hash. The format is frozen for the lifetime of a chain: changing
// it does not invalidate already-recorded history (each hash depends only on
// its own payload bytes plus the previous hash), but it breaks verifiability
// of future entries against recomputation.
type Payload interface {
	CanonicalBytes() []byte
	OwnerID() uuid.UUID
}

// Entry is a single hash-linked record.
//
// ID is a dense, monotonically increasing sequence number assigned by the
// store at append time. ID, CreatedAt, PrevHash, and CurrentHash are frozen
// once assigned; entries are never updated or deleted in place. A correction
// is expressed as a new entry referencing the original by business
// identifier.
type Entry[P Payload] struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Payload     P         `json:"payload"`
	PrevHash    string    `json:"prev_hash"`
	CurrentHash string    `json:"current_hash"`
}
