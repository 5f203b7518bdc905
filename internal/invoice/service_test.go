package invoice_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/binder"
	"github.com/inaltera/inaltera/internal/event"
	"github.com/inaltera/inaltera/internal/hashchain"
	"github.com/inaltera/inaltera/internal/invoice"
	"github.com/inaltera/inaltera/internal/ledger"
)

var ctx = context.Background()

type fixture struct {
	svc    *invoice.Service
	store  *invoice.MemoryStore
	events *event.MemoryStore
}

func newFixture(t *testing.T, stamper binder.Stamper) *fixture {
	t.Helper()
	store := invoice.NewMemoryStore()
	eventStore := event.NewMemoryStore()

	artifacts, err := binder.NewFSStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	b := binder.New("http://localhost:3000", stamper, artifacts, zap.NewNop())

	recorder := event.NewRecorder(
		ledger.NewService[event.Payload]("events", eventStore, zap.NewNop()),
		eventStore, zap.NewNop(),
	)
	t.Cleanup(recorder.Close)

	svc := invoice.NewService(store, b, invoice.JSONRenderer{}, recorder, zap.NewNop())
	return &fixture{svc: svc, store: store, events: eventStore}
}

func sampleDraft() invoice.Draft {
	return invoice.Draft{
		Counterparty:      "Acme S.L.",
		CounterpartyTaxID: "B-12345678",
		Items: []invoice.LineItem{
			{Description: "Consulting", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00"), VATRate: 21},
		},
	}
}

func TestIssue_createsLinkedRecord(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	e, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}

	if e.PrevHash != hashchain.Genesis {
		t.Errorf("first record prev_hash: got %q, want genesis", e.PrevHash)
	}
	// 2 × 10.00 × 1.21 = 24.20
	if got := e.Payload.Total.StringFixed(2); got != "24.20" {
		t.Errorf("total: got %s, want 24.20", got)
	}
	if e.Payload.Kind != invoice.KindIssuance || e.Payload.Status != invoice.StatusValid {
		t.Errorf("kind/status: got %s/%s", e.Payload.Kind, e.Payload.Status)
	}
	if !strings.Contains(e.Payload.VerificationRef, e.CurrentHash) {
		t.Errorf("verification ref %q does not embed hash", e.Payload.VerificationRef)
	}
	if e.Payload.ArtifactName == "" {
		t.Error("artifact name not recorded")
	}

	// The artifact digest in the hashed payload matches the stored bytes.
	name, data, err := f.svc.Artifact(ctx, owner, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if name != e.Payload.ArtifactName {
		t.Errorf("artifact name mismatch: %q vs %q", name, e.Payload.ArtifactName)
	}
	if hashchain.Sum256(data) != e.Payload.DocDigest {
		t.Error("stored artifact does not match hashed digest")
	}
}

func TestIssue_chainsAcrossOwners(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})

	e1, err := f.svc.Issue(ctx, uuid.New(), sampleDraft())
	if err != nil {
		t.Fatal(err)
	}
	e2, err := f.svc.Issue(ctx, uuid.New(), sampleDraft())
	if err != nil {
		t.Fatal(err)
	}

	if e2.PrevHash != e1.CurrentHash {
		t.Error("records from different owners must share one global chain")
	}
	if err := f.svc.Audit(ctx); err != nil {
		t.Errorf("chain audit failed: %v", err)
	}
}

func TestVerifyPublic(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	e, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}

	sum, ok := f.svc.VerifyPublic(ctx, e.CurrentHash)
	if !ok {
		t.Fatal("known hash must verify")
	}
	if sum.DocNumber != e.Payload.DocNumber || sum.Counterparty != "Acme S.L." {
		t.Errorf("summary: %+v", sum)
	}
	if sum.Total.StringFixed(2) != "24.20" {
		t.Errorf("summary total: %s", sum.Total.StringFixed(2))
	}

	// Idempotent with no intervening writes.
	again, ok2 := f.svc.VerifyPublic(ctx, e.CurrentHash)
	if !ok2 || *again != *sum {
		t.Error("repeated verification returned a different result")
	}

	if _, ok := f.svc.VerifyPublic(ctx, "deadbeef"); ok {
		t.Error("malformed hash must not verify")
	}
	unknown := strings.Repeat("ab", 32)
	if _, ok := f.svc.VerifyPublic(ctx, unknown); ok {
		t.Error("unknown hash must not verify")
	}
}

func TestCancel_isAdditive(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	orig, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}
	tip, err := f.svc.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}

	cxl, err := f.svc.Cancel(ctx, owner, orig.Payload.DocNumber, "billing error")
	if err != nil {
		t.Fatal(err)
	}

	if cxl.PrevHash != tip.CurrentHash {
		t.Error("cancellation must link to the pre-cancellation tip")
	}
	if cxl.Payload.Kind != invoice.KindCancellation {
		t.Errorf("kind: %s", cxl.Payload.Kind)
	}
	if cxl.Payload.Total.StringFixed(2) != "-24.20" {
		t.Errorf("cancellation total: %s", cxl.Payload.Total.StringFixed(2))
	}

	// Original: status flipped, hash untouched.
	after, err := f.store.Get(ctx, orig.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Payload.Status != invoice.StatusCancelled {
		t.Errorf("original status: %s", after.Payload.Status)
	}
	if after.CurrentHash != orig.CurrentHash || after.PrevHash != orig.PrevHash {
		t.Error("cancellation must not touch the original's hashes")
	}

	// The flipped status does not break verification: status is not hashed.
	if err := f.svc.Audit(ctx); err != nil {
		t.Errorf("chain audit after cancellation: %v", err)
	}
}

func TestCancel_secondAttemptConflicts(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	orig, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, owner, orig.Payload.DocNumber, "first"); err != nil {
		t.Fatal(err)
	}

	lenBefore, _ := f.svc.Head(ctx)
	_, err = f.svc.Cancel(ctx, owner, orig.Payload.DocNumber, "second")
	if !errors.Is(err, invoice.ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
	lenAfter, _ := f.svc.Head(ctx)
	if lenAfter.ID != lenBefore.ID {
		t.Error("chain must not grow on a conflicting cancellation")
	}
}

func TestCancel_unknownDocument(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	_, err := f.svc.Cancel(ctx, uuid.New(), "F-NOPE", "reason")
	if !errors.Is(err, invoice.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLegalize_registersThirdPartyDocument(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()
	doc := []byte("%PDF-1.4 third party invoice")

	e, err := f.svc.Legalize(ctx, owner, invoice.Upload{
		DocNumber:    "EXT-2026-042",
		Counterparty: "Proveedor SA",
		Total:        decimal.RequireFromString("150.50"),
		Document:     doc,
	})
	if err != nil {
		t.Fatal(err)
	}

	if e.Payload.Kind != invoice.KindLegalization {
		t.Errorf("kind: %s", e.Payload.Kind)
	}
	if e.Payload.DocDigest != hashchain.Sum256(doc) {
		t.Error("digest must cover the uploaded document bytes")
	}
	if _, ok := f.svc.VerifyPublic(ctx, e.CurrentHash); !ok {
		t.Error("legalized document must be publicly verifiable")
	}
}

type failingStamper struct{}

func (failingStamper) Stamp([]byte, string) ([]byte, error) {
	return nil, errors.New("renderer offline")
}

func TestIssue_bindingFailureCompensatesWhileTip(t *testing.T) {
	f := newFixture(t, failingStamper{})

	_, err := f.svc.Issue(ctx, uuid.New(), sampleDraft())
	var be *invoice.BindingError
	if !errors.As(err, &be) {
		t.Fatalf("expected BindingError, got %v", err)
	}
	if !be.Compensated {
		t.Error("entry was still the tip; compensation expected")
	}
	if !errors.Is(err, binder.ErrStamp) {
		t.Error("binding error must wrap the stamp failure")
	}

	// The compensated entry is gone; the ledger is empty again.
	if _, err := f.svc.Head(ctx); !errors.Is(err, ledger.ErrEmpty) {
		t.Errorf("ledger should be empty after compensation, got %v", err)
	}
}

// stuckTipStore simulates an entry that lost tip position before
// compensation could run.
type stuckTipStore struct {
	*invoice.MemoryStore
}

func (s *stuckTipStore) DeleteIfTip(context.Context, int64) error {
	return invoice.ErrNotTip
}

func TestIssue_bindingFailureFlagsWhenNotTip(t *testing.T) {
	store := &stuckTipStore{MemoryStore: invoice.NewMemoryStore()}
	eventStore := event.NewMemoryStore()
	artifacts, err := binder.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := binder.New("http://localhost:3000", failingStamper{}, artifacts, zap.NewNop())
	recorder := event.NewRecorder(
		ledger.NewService[event.Payload]("events", eventStore, zap.NewNop()),
		eventStore, zap.NewNop(),
	)
	t.Cleanup(recorder.Close)
	svc := invoice.NewService(store, b, invoice.JSONRenderer{}, recorder, zap.NewNop())

	_, err = svc.Issue(ctx, uuid.New(), sampleDraft())
	var be *invoice.BindingError
	if !errors.As(err, &be) {
		t.Fatalf("expected BindingError, got %v", err)
	}
	if be.Compensated {
		t.Error("compensation is forbidden once the entry is not the tip")
	}

	// The entry survives, flagged for operator follow-up.
	e, err := store.Get(ctx, be.EntryID)
	if err != nil {
		t.Fatal(err)
	}
	if e.Payload.Status != invoice.StatusArtifactMissing {
		t.Errorf("status: got %s, want artifact_missing", e.Payload.Status)
	}
}

func TestTrace_exportsTraceabilityRecord(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	e, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}

	tr, err := f.svc.Trace(ctx, owner, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Traceability.CurrentHash != e.CurrentHash || tr.Traceability.PrevHash != e.PrevHash {
		t.Error("trace record hashes do not match the entry")
	}
	if tr.Traceability.Algorithm != "SHA-256" {
		t.Errorf("algorithm: %s", tr.Traceability.Algorithm)
	}

	// Another principal cannot export it.
	if _, err := f.svc.Trace(ctx, uuid.New(), e.ID); !errors.Is(err, invoice.ErrNotFound) {
		t.Errorf("foreign owner must get not-found, got %v", err)
	}
}

func TestUsage_countsIssuanceOnly(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()
	f.svc.SetMonthlyLimit(5)

	e, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Legalize(ctx, owner, invoice.Upload{
		DocNumber: "EXT-1", Total: decimal.NewFromInt(10), Document: []byte("doc"),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, owner, e.Payload.DocNumber, "test"); err != nil {
		t.Fatal(err)
	}

	u, err := f.svc.Usage(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if u.Used != 1 {
		t.Errorf("used: got %d, want 1 (legalizations and cancellations excluded)", u.Used)
	}
	if u.Limit != 5 || u.Percent != 20 {
		t.Errorf("limit/percent: got %d/%d", u.Limit, u.Percent)
	}
}

func TestAudit_detectsTamperedTotal(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	e1, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Issue(ctx, owner, sampleDraft()); err != nil {
		t.Fatal(err)
	}

	// An attacker quietly rewrites the stored total of the first record.
	if err := f.store.Update(e1.ID, func(e *ledger.Entry[invoice.Payload]) {
		e.Payload.Total = decimal.RequireFromString("9999.99")
	}); err != nil {
		t.Fatal(err)
	}

	err = f.svc.Audit(ctx)
	var ie *ledger.IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ie.ID != e1.ID {
		t.Errorf("first tampered id: got %d, want %d", ie.ID, e1.ID)
	}
}

func TestAudit_survivesStoreTimestampPrecision(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	if _, err := f.svc.Issue(ctx, owner, sampleDraft()); err != nil {
		t.Fatal(err)
	}
	// Caller-supplied time carrying sub-microsecond digits.
	if _, err := f.svc.Legalize(ctx, owner, invoice.Upload{
		DocNumber: "EXT-1",
		Total:     decimal.NewFromInt(10),
		IssuedAt:  time.Date(2026, 8, 29, 19, 2, 29, 411202165, time.UTC),
		Document:  []byte("doc"),
	}); err != nil {
		t.Fatal(err)
	}

	// timestamptz keeps microseconds, so a round-trip through the production
	// store loses anything finer. Recomputation must not depend on it.
	for id := int64(1); id <= 2; id++ {
		if err := f.store.Update(id, func(e *ledger.Entry[invoice.Payload]) {
			e.Payload.OccurredAt = e.Payload.OccurredAt.Truncate(time.Microsecond)
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.svc.Audit(ctx); err != nil {
		t.Errorf("untampered chain reported tampered after timestamp round-trip: %v", err)
	}
}

func TestEvents_emittedForBusinessActions(t *testing.T) {
	f := newFixture(t, binder.PassthroughStamper{})
	owner := uuid.New()

	e, err := f.svc.Issue(ctx, owner, sampleDraft())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Cancel(ctx, owner, e.Payload.DocNumber, "dup"); err != nil {
		t.Fatal(err)
	}

	events, err := f.events.ListByOwner(ctx, owner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("audit events: got %d, want 2", len(events))
	}
	if events[0].Payload.Category != event.CategoryCancellation {
		t.Errorf("latest event category: %s", events[0].Payload.Category)
	}
	if events[0].Payload.Level != event.LevelWarning {
		t.Errorf("cancellation severity: %s", events[0].Payload.Level)
	}
}
