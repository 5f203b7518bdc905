package ledger

import (
	"errors"
	"fmt"
)

// ErrEmpty is returned by LastEntry when the ledger has no entries yet.
var ErrEmpty = errors.New("ledger is empty")

// ErrNotFound is returned when a lookup matches no entry.
var ErrNotFound = errors.New("ledger entry not found")

// ErrConcurrentAppend is returned by a store when another appender committed
// an entry with the same prev_hash first. The caller must redo the full
// read-compute-append sequence against the new tip, never reuse the stale
// hash.
var ErrConcurrentAppend = errors.New("concurrent append on same chain tip")

// IntegrityError reports the first entry whose recomputed hash or linkage
// does not match what is stored. It is fatal to trust in the verified range
// and is never auto-corrected.
type IntegrityError struct {
	ID     int64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at entry %d: %s", e.ID, e.Reason)
}
