// Package event implements the audit-event ledger: a hash chain of
// operational events (boot, billing actions, cancellations, downloads)
// independent from the invoice chain. It is never publicly exposed.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inaltera/inaltera/internal/ledger"
)

// Category classifies an audit event.
type Category string

const (
	CategorySystem       Category = "system"
	CategoryBilling      Category = "billing"
	CategoryCancellation Category = "cancellation"
	CategoryDownload     Category = "download"
	CategorySecurity     Category = "security"
)

// Level is the event severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Payload is the audit ledger entry content. All fields are covered by the
// hash; audit events carry no mutable state.
type Payload struct {
	Actor       uuid.UUID `json:"actor_id"` // uuid.Nil for system events
	Category    Category  `json:"category"`
	Description string    `json:"description"`
	Level       Level     `json:"level"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CanonicalBytes implements ledger.Payload. Frozen for the chain's lifetime.
func (p Payload) CanonicalBytes() []byte {
	return fmt.Appendf(nil, "%s|%s|%s|%s|%s",
		p.OccurredAt.UTC().Format(time.RFC3339Nano),
		p.Category, p.Description, p.Level, p.Actor,
	)
}

// OwnerID implements ledger.Payload.
func (p Payload) OwnerID() uuid.UUID { return p.Actor }

// Entry is a hash-linked audit event.
type Entry = ledger.Entry[Payload]
