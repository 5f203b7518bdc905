// Package invoice implements the invoice ledger: tamper-evident records for
// invoice issuance, third-party document legalization, and cancellation.
//
// Records live on one global hash chain regardless of owner; owner filtering
// is applied on reads only. Monetary amounts are decimal throughout —
// canonical bytes serialize totals with a fixed two-decimal rendering so
// re-verification can never drift.
package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/inaltera/inaltera/internal/ledger"
)

// Kind is the record kind on the invoice ledger.
type Kind string

const (
	// KindIssuance is an invoice issued by the system.
	KindIssuance Kind = "issuance"
	// KindLegalization is a third-party document registered on the chain.
	KindLegalization Kind = "legalization"
	// KindCancellation is the additive record voiding an earlier one.
	KindCancellation Kind = "cancellation"
)

// Status is the mutable state of a record. It lives outside the hashed
// payload: flipping it never changes the record's hash or linkage.
type Status string

const (
	StatusValid             Status = "valid"
	StatusCancelled         Status = "cancelled"
	StatusCancellationEvent Status = "cancellation_event"
	// StatusArtifactMissing marks a confirmed ledger entry whose companion
	// artifact could not be produced and whose compensating deletion was no
	// longer permitted. Requires operator follow-up.
	StatusArtifactMissing Status = "artifact_missing"
)

// Payload is the invoice ledger entry content.
//
// The hash covers Owner, DocNumber, Counterparty, Total, Kind, OccurredAt,
// CancelReason, and DocDigest. Status, VerificationRef, and ArtifactName are
// deliberately outside it: Status is the one mutable field, and the
// verification reference embeds the entry's own hash, so hashing either would
// be circular or would freeze state that must stay correctable.
type Payload struct {
	Owner        uuid.UUID       `json:"owner_id"`
	DocNumber    string          `json:"doc_number"`
	Counterparty string          `json:"counterparty"`
	Total        decimal.Decimal `json:"total"`
	Kind         Kind            `json:"kind"`
	OccurredAt   time.Time       `json:"occurred_at"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	// DocDigest is the SHA-256 of the bound artifact bytes. Empty for
	// cancellation records, which have no artifact.
	DocDigest string `json:"doc_digest,omitempty"`

	Status          Status `json:"status"`
	VerificationRef string `json:"verification_ref,omitempty"`
	ArtifactName    string `json:"artifact_name,omitempty"`
}

// CanonicalBytes implements ledger.Payload. The field order and the
// two-decimal total rendering are frozen for the lifetime of the chain.
func (p Payload) CanonicalBytes() []byte {
	return fmt.Appendf(nil, "%s|%s|%s|%s|%s|%s|%s|%s",
		p.Kind, p.Owner, p.DocNumber, p.Counterparty,
		p.Total.StringFixed(2),
		p.OccurredAt.UTC().Format(time.RFC3339Nano),
		p.CancelReason, p.DocDigest,
	)
}

// OwnerID implements ledger.Payload.
func (p Payload) OwnerID() uuid.UUID { return p.Owner }

// Entry is a hash-linked invoice record.
type Entry = ledger.Entry[Payload]

// LineItem is a single invoice line. Unit prices are decimal; VATRate is a
// whole percentage.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     int             `json:"vat_rate"`
}

// Gross returns quantity × unit price × (1 + VAT), rounded to two decimals.
func (li LineItem) Gross() decimal.Decimal {
	base := li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
	return base.Mul(decimal.NewFromInt(int64(100 + li.VATRate))).
		Div(decimal.NewFromInt(100)).
		Round(2)
}

// Draft is the input to invoice issuance.
type Draft struct {
	Counterparty      string     `json:"counterparty"`
	CounterpartyTaxID string     `json:"counterparty_tax_id"`
	Items             []LineItem `json:"items"`
	Notes             string     `json:"notes"`
}

// Total sums the gross amounts of all lines.
func (d Draft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range d.Items {
		total = total.Add(li.Gross())
	}
	return total.Round(2)
}

// Upload is the input to third-party document legalization: the document was
// produced elsewhere and is registered on the chain as-is.
type Upload struct {
	DocNumber    string
	Counterparty string
	Total        decimal.Decimal
	IssuedAt     time.Time
	Filename     string
	Document     []byte
}

// PublicSummary is the redacted view returned by public hash verification.
type PublicSummary struct {
	DocNumber    string          `json:"doc_number"`
	Counterparty string          `json:"counterparty"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TraceRecord is the exportable traceability document for a single record,
// suitable for handing to auditors alongside the artifact.
type TraceRecord struct {
	Header struct {
		RecordID  int64     `json:"record_id"`
		Timestamp time.Time `json:"timestamp"`
		Version   string    `json:"version"`
	} `json:"header"`
	Traceability struct {
		PrevHash    string `json:"prev_hash"`
		CurrentHash string `json:"current_hash"`
		Algorithm   string `json:"algorithm"`
	} `json:"traceability"`
	Document struct {
		DocNumber       string `json:"doc_number"`
		ArtifactName    string `json:"artifact_name,omitempty"`
		VerificationRef string `json:"verification_ref,omitempty"`
	} `json:"document"`
}

// UsageReport summarises an owner's issuance volume for the current month.
type UsageReport struct {
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	Percent int       `json:"percent"`
	ResetAt time.Time `json:"reset_at"`
}
