package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/inaltera/inaltera/internal/ledger"
)

// ErrNotFound is returned when a record lookup matches nothing the caller
// owns.
var ErrNotFound = errors.New("invoice record not found")

// ErrAlreadyCancelled is returned when cancellation targets a record that is
// already cancelled. The chain must not grow in that case.
var ErrAlreadyCancelled = errors.New("invoice already cancelled")

// ErrNotTip is returned by DeleteIfTip when later entries exist: deleting
// would break a confirmed chain link, so compensation is forbidden.
var ErrNotTip = errors.New("entry is no longer the chain tip")

// Store is the invoice ledger's storage: the generic chain operations plus
// the record-level operations that touch only non-hashed fields.
type Store interface {
	ledger.Store[Payload]

	// FindByDocNumber returns the owner's original record (issuance or
	// legalization, never a cancellation entry) with the given business
	// document number.
	FindByDocNumber(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error)

	// ClaimCancellation atomically flips the record's status from valid to
	// cancelled and returns the record as it was before the flip. Returns
	// ErrAlreadyCancelled if the status was not valid, ErrNotFound if the
	// owner has no such record. The flip is the concurrency guard against
	// duplicate cancellation entries.
	ClaimCancellation(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error)

	// ReleaseCancellation reverts a claimed flip after a failed cancellation
	// append. Best effort; callers log but do not propagate its error.
	ReleaseCancellation(ctx context.Context, id int64) error

	// SetVerificationRef stores the public verification reference. Outside
	// the hash.
	SetVerificationRef(ctx context.Context, id int64, ref string) error

	// SetArtifact stores the persisted artifact name. Outside the hash.
	SetArtifact(ctx context.Context, id int64, name string) error

	// DeleteIfTip removes the entry only while it is still the chain tip,
	// under the same serialization as Append. This is the single sanctioned
	// exception to append-only: a just-created entry whose artifact could
	// not be produced and that no reader has been exposed to.
	DeleteIfTip(ctx context.Context, id int64) error

	// MarkArtifactMissing flags the entry for operator follow-up when
	// compensation is no longer permitted.
	MarkArtifactMissing(ctx context.Context, id int64) error

	// CountIssuedSince counts the owner's issuance records created at or
	// after t.
	CountIssuedSince(ctx context.Context, owner uuid.UUID, t time.Time) (int, error)
}
