package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/binder"
	"github.com/inaltera/inaltera/internal/event"
	"github.com/inaltera/inaltera/internal/hashchain"
	"github.com/inaltera/inaltera/internal/ledger"
)

// traceVersion tags exported traceability records.
const traceVersion = "1.0"

// BindingError reports that a ledger entry was committed but its companion
// artifact could not be produced. Compensated reports whether the entry was
// removed (it was still the chain tip) or left flagged artifact_missing.
type BindingError struct {
	EntryID     int64
	DocNumber   string
	Compensated bool
	Err         error
}

func (e *BindingError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("artifact binding failed for %s, record compensated: %v", e.DocNumber, e.Err)
	}
	return fmt.Sprintf("artifact binding failed for %s, record %d flagged artifact_missing: %v", e.DocNumber, e.EntryID, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }

// Renderer produces the artifact bytes for an issued invoice. PDF layout is a
// collaborator concern; the default renderer emits a structured JSON
// document.
type Renderer interface {
	// Render returns the artifact bytes and the filename they should be
	// stored under.
	Render(docNumber string, draft Draft, total string, issuedAt time.Time) (data []byte, filename string, err error)
}

// Service orchestrates the invoice ledger: issuance, third-party
// legalization, cancellation, public verification, and chain audit.
type Service struct {
	chain    *ledger.Service[Payload]
	store    Store
	binder   *binder.Binder
	renderer Renderer
	events   *event.Recorder
	logger   *zap.Logger

	monthlyLimit int
	now          func() time.Time
}

// NewService creates the invoice Service.
func NewService(store Store, b *binder.Binder, renderer Renderer, events *event.Recorder, logger *zap.Logger) *Service {
	return &Service{
		chain:        ledger.NewService[Payload]("invoices", store, logger),
		store:        store,
		binder:       b,
		renderer:     renderer,
		events:       events,
		logger:       logger,
		monthlyLimit: 100,
		// timestamptz keeps microseconds; a finer OccurredAt would hash
		// differently after a round-trip through the store.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// SetMonthlyLimit overrides the per-owner monthly issuance limit.
func (s *Service) SetMonthlyLimit(n int) {
	if n > 0 {
		s.monthlyLimit = n
	}
}

// Issue creates a new invoice record: render the artifact, append the
// hash-linked entry, bind the resulting hash into the artifact and the
// public verification reference, and audit the action.
//
// Rendering happens before the append so a renderer failure leaves no trace
// on the chain. If binding fails after the append, the entry is compensated
// while it is still the chain tip; once a later entry exists the record is
// flagged artifact_missing instead — deleting it would break a confirmed
// link.
func (s *Service) Issue(ctx context.Context, owner uuid.UUID, draft Draft) (*Entry, error) {
	if draft.Counterparty == "" {
		return nil, fmt.Errorf("counterparty is required")
	}
	if len(draft.Items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}

	now := s.now()
	// Date plus a short random suffix: unique even when two invoices are
	// issued within the same second.
	docNumber := fmt.Sprintf("F-%s-%s", now.Format("20060102"), uuid.NewString()[:8])
	total := draft.Total()

	doc, filename, err := s.renderer.Render(docNumber, draft, total.StringFixed(2), now)
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", docNumber, err)
	}

	p := Payload{
		Owner:        owner,
		DocNumber:    docNumber,
		Counterparty: draft.Counterparty,
		Total:        total,
		Kind:         KindIssuance,
		OccurredAt:   now,
		DocDigest:    hashchain.Sum256(doc),
		Status:       StatusValid,
	}

	entry, err := s.chain.Record(ctx, p)
	if err != nil {
		return nil, err
	}

	if err := s.bind(ctx, entry, filename, doc); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, event.CategoryBilling, event.LevelInfo,
		fmt.Sprintf("invoice issued: %s (%s)", docNumber, total.StringFixed(2)), owner)

	return s.store.Get(ctx, entry.ID)
}

// Legalize registers a third-party document on the chain: the document
// already exists, so only its digest and business fields are recorded before
// the same bind sequence stamps the reference into it.
func (s *Service) Legalize(ctx context.Context, owner uuid.UUID, up Upload) (*Entry, error) {
	if up.DocNumber == "" || len(up.Document) == 0 {
		return nil, fmt.Errorf("document number and content are required")
	}
	issuedAt := up.IssuedAt.UTC().Truncate(time.Microsecond)
	if up.IssuedAt.IsZero() {
		issuedAt = s.now()
	}

	p := Payload{
		Owner:        owner,
		DocNumber:    up.DocNumber,
		Counterparty: up.Counterparty,
		Total:        up.Total.Round(2),
		Kind:         KindLegalization,
		OccurredAt:   issuedAt,
		DocDigest:    hashchain.Sum256(up.Document),
		Status:       StatusValid,
	}

	entry, err := s.chain.Record(ctx, p)
	if err != nil {
		return nil, err
	}

	name := up.Filename
	if name == "" {
		name = fmt.Sprintf("%s_%s.pdf", up.DocNumber, entry.CurrentHash[:8])
	}
	if err := s.bind(ctx, entry, name, up.Document); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, event.CategoryBilling, event.LevelInfo,
		fmt.Sprintf("third-party document legalized: %s", up.DocNumber), owner)

	return s.store.Get(ctx, entry.ID)
}

// bind stamps and stores the artifact for a freshly appended entry and
// records the verification reference. On failure it applies the bounded
// compensation and returns a BindingError.
func (s *Service) bind(ctx context.Context, entry *Entry, name string, doc []byte) error {
	ref := s.binder.Reference(entry.CurrentHash)
	if err := s.store.SetVerificationRef(ctx, entry.ID, ref); err != nil {
		return fmt.Errorf("set verification ref on %d: %w", entry.ID, err)
	}

	storedName, bindErr := s.binder.Bind(entry.ID, name, doc, ref)
	if bindErr == nil {
		if err := s.store.SetArtifact(ctx, entry.ID, storedName); err != nil {
			return fmt.Errorf("set artifact on %d: %w", entry.ID, err)
		}
		return nil
	}

	delErr := s.store.DeleteIfTip(ctx, entry.ID)
	switch {
	case delErr == nil:
		return &BindingError{EntryID: entry.ID, DocNumber: entry.Payload.DocNumber, Compensated: true, Err: bindErr}
	case errors.Is(delErr, ErrNotTip):
		if err := s.store.MarkArtifactMissing(ctx, entry.ID); err != nil {
			s.logger.Error("failed to flag entry artifact_missing",
				zap.Int64("id", entry.ID), zap.Error(err))
		}
		return &BindingError{EntryID: entry.ID, DocNumber: entry.Payload.DocNumber, Err: bindErr}
	default:
		s.logger.Error("compensating delete failed",
			zap.Int64("id", entry.ID), zap.Error(delErr))
		return &BindingError{EntryID: entry.ID, DocNumber: entry.Payload.DocNumber, Err: bindErr}
	}
}

// Cancel voids an invoice by appending a cancellation record referencing the
// original's business document number. The original entry's hash and linkage
// are frozen forever; only its status flips. A second cancellation fails with
// ErrAlreadyCancelled and leaves the chain length unchanged.
func (s *Service) Cancel(ctx context.Context, owner uuid.UUID, docNumber, reason string) (*Entry, error) {
	if reason == "" {
		return nil, fmt.Errorf("cancellation reason is required")
	}

	orig, err := s.store.ClaimCancellation(ctx, owner, docNumber)
	if err != nil {
		return nil, err
	}

	p := Payload{
		Owner:        owner,
		DocNumber:    orig.Payload.DocNumber,
		Counterparty: orig.Payload.Counterparty,
		Total:        orig.Payload.Total.Neg(),
		Kind:         KindCancellation,
		OccurredAt:   s.now(),
		CancelReason: reason,
		Status:       StatusCancellationEvent,
	}

	entry, err := s.chain.Record(ctx, p)
	if err != nil {
		if relErr := s.store.ReleaseCancellation(ctx, orig.ID); relErr != nil {
			s.logger.Error("failed to release cancellation claim",
				zap.Int64("id", orig.ID), zap.Error(relErr))
		}
		return nil, err
	}

	s.events.Emit(ctx, event.CategoryCancellation, event.LevelWarning,
		fmt.Sprintf("invoice %s cancelled: %s", docNumber, reason), owner)

	return entry, nil
}

// List returns the owner's records, most recent first.
func (s *Service) List(ctx context.Context, owner uuid.UUID) ([]*Entry, error) {
	return s.chain.ListByOwner(ctx, owner, 0)
}

// VerifyPublic resolves a claimed hash against the invoice ledger only.
// Malformed or unknown hashes are simply "not valid" — the caller learns
// nothing about near-misses, and storage errors are not exposed.
func (s *Service) VerifyPublic(ctx context.Context, hash string) (*PublicSummary, bool) {
	if !hashchain.IsWellFormed(hash) {
		return nil, false
	}
	e, err := s.chain.FindByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			s.logger.Error("public verification lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return &PublicSummary{
		DocNumber:    e.Payload.DocNumber,
		Counterparty: e.Payload.Counterparty,
		Total:        e.Payload.Total,
		CreatedAt:    e.CreatedAt,
	}, true
}

// Trace exports the traceability record for one of the owner's entries and
// audits the download.
func (s *Service) Trace(ctx context.Context, owner uuid.UUID, id int64) (*TraceRecord, error) {
	e, err := s.ownedEntry(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	var tr TraceRecord
	tr.Header.RecordID = e.ID
	tr.Header.Timestamp = e.CreatedAt
	tr.Header.Version = traceVersion
	tr.Traceability.PrevHash = e.PrevHash
	tr.Traceability.CurrentHash = e.CurrentHash
	tr.Traceability.Algorithm = "SHA-256"
	tr.Document.DocNumber = e.Payload.DocNumber
	tr.Document.ArtifactName = e.Payload.ArtifactName
	tr.Document.VerificationRef = e.Payload.VerificationRef

	s.events.Emit(ctx, event.CategoryDownload, event.LevelInfo,
		fmt.Sprintf("traceability record downloaded for %s", e.Payload.DocNumber), owner)
	return &tr, nil
}

// Artifact returns the stored artifact for one of the owner's entries and
// audits the download.
func (s *Service) Artifact(ctx context.Context, owner uuid.UUID, id int64) (string, []byte, error) {
	e, err := s.ownedEntry(ctx, owner, id)
	if err != nil {
		return "", nil, err
	}
	if e.Payload.ArtifactName == "" {
		return "", nil, ErrNotFound
	}
	data, err := s.binder.Artifact(e.Payload.ArtifactName)
	if err != nil {
		return "", nil, fmt.Errorf("load artifact for %d: %w", id, err)
	}

	s.events.Emit(ctx, event.CategoryDownload, event.LevelInfo,
		fmt.Sprintf("artifact downloaded for %s", e.Payload.DocNumber), owner)
	return e.Payload.ArtifactName, data, nil
}

// Usage reports the owner's issuance volume for the current calendar month.
func (s *Service) Usage(ctx context.Context, owner uuid.UUID) (*UsageReport, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	used, err := s.store.CountIssuedSince(ctx, owner, monthStart)
	if err != nil {
		return nil, err
	}

	pct := 0
	if s.monthlyLimit > 0 {
		pct = used * 100 / s.monthlyLimit
		if pct > 100 {
			pct = 100
		}
	}
	return &UsageReport{
		Used:    used,
		Limit:   s.monthlyLimit,
		Percent: pct,
		ResetAt: monthStart.AddDate(0, 1, 0),
	}, nil
}

// Audit verifies the whole invoice chain, reporting the first tampered entry
// via ledger.IntegrityError.
func (s *Service) Audit(ctx context.Context) error {
	return s.chain.VerifyChain(ctx, 1, 0)
}

// Head returns the invoice chain tip.
func (s *Service) Head(ctx context.Context) (*Entry, error) {
	return s.chain.Head(ctx)
}

func (s *Service) ownedEntry(ctx context.Context, owner uuid.UUID, id int64) (*Entry, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if e.Payload.Owner != owner {
		// Ownership failures are indistinguishable from absence.
		return nil, ErrNotFound
	}
	return e, nil
}
