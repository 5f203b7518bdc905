package event

import (
	"context"

	"github.com/inaltera/inaltera/internal/ledger"
)

// Store is the audit ledger's storage: the generic chain operations plus the
// persisted failure marker used when an event cannot be appended at all.
type Store interface {
	ledger.Store[Payload]

	// RecordFailure persists an event that exhausted its append retries, so
	// nothing is silently dropped even when the chain is unavailable.
	RecordFailure(ctx context.Context, p Payload, cause string) error
}
