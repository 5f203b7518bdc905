package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/hashchain"
	"github.com/inaltera/inaltera/internal/ledger"
)

// invoiceAppendLockKey serializes appends and compensating deletes on the
// invoice chain across all server instances. Independent from the event
// ledger's key so the two chains never block each other.
const invoiceAppendLockKey = int64(7_412_090_001)

const invoiceColumns = `id, created_at, owner_id, doc_number, counterparty, total::text,
	kind, occurred_at, cancel_reason, doc_digest, status, verification_ref,
	artifact_name, prev_hash, current_hash`

// PostgresStore persists the invoice ledger to the invoice_records table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// LastEntry implements ledger.Store.
func (s *PostgresStore) LastEntry(ctx context.Context) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_records ORDER BY id DESC LIMIT 1`)
	e, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEmpty
	}
	return e, err
}

// Append implements ledger.Store. The tail read, the stale-tip check, and the
// insert run in one transaction under an advisory lock; a second appender
// that raced on the same prev_hash fails with ledger.ErrConcurrentAppend and
// must redo the whole read-compute-append sequence.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) (*Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", invoiceAppendLockKey); err != nil {
		return nil, fmt.Errorf("acquire append lock: %w", err)
	}

	tipID, tipHash, err := chainTip(ctx, tx, "invoice_records")
	if err != nil {
		return nil, err
	}
	if e.PrevHash != tipHash {
		return nil, ledger.ErrConcurrentAppend
	}

	stored := *e
	stored.ID = tipID + 1
	stored.CreatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		INSERT INTO invoice_records (id, created_at, owner_id, doc_number, counterparty,
			total, kind, occurred_at, cancel_reason, doc_digest, status,
			verification_ref, artifact_name, prev_hash, current_hash)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		stored.ID, stored.CreatedAt, stored.Payload.Owner, stored.Payload.DocNumber,
		stored.Payload.Counterparty, stored.Payload.Total.StringFixed(2),
		string(stored.Payload.Kind), stored.Payload.OccurredAt,
		stored.Payload.CancelReason, stored.Payload.DocDigest,
		string(stored.Payload.Status), stored.Payload.VerificationRef,
		stored.Payload.ArtifactName, stored.PrevHash, stored.CurrentHash,
	); err != nil {
		return nil, fmt.Errorf("insert invoice record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit invoice append: %w", err)
	}
	return &stored, nil
}

// chainTip reads the current tail under the caller's transaction. An empty
// table yields id 0 and the genesis constant.
func chainTip(ctx context.Context, tx pgx.Tx, table string) (int64, string, error) {
	var id int64
	var hash string
	err := tx.QueryRow(ctx,
		"SELECT id, current_hash FROM "+table+" ORDER BY id DESC LIMIT 1",
	).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, hashchain.Genesis, nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read chain tip: %w", err)
	}
	return id, hash, nil
}

// Get implements ledger.Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_records WHERE id = $1`, id)
	e, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return e, err
}

// Range implements ledger.Store.
func (s *PostgresStore) Range(ctx context.Context, from, to int64) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_records
		 WHERE id BETWEEN $1 AND $2 ORDER BY id ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query invoice range: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// FindByHash implements ledger.Store. Exact equality only.
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_records WHERE current_hash = $1`, hash)
	e, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return e, err
}

// ListByOwner implements ledger.Store.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]*Entry, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoice_records WHERE owner_id = $1 ORDER BY id DESC`
	args := []any{owner}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices by owner: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// FindByDocNumber implements Store.
func (s *PostgresStore) FindByDocNumber(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_records
		 WHERE owner_id = $1 AND doc_number = $2 AND kind <> 'cancellation'
		 ORDER BY id ASC LIMIT 1`, owner, doc)
	e, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ClaimCancellation implements Store. The conditional UPDATE is the guard:
// zero rows affected means another caller cancelled first, and no duplicate
// cancellation entry gets appended.
func (s *PostgresStore) ClaimCancellation(ctx context.Context, owner uuid.UUID, doc string) (*Entry, error) {
	orig, err := s.FindByDocNumber(ctx, owner, doc)
	if err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE invoice_records SET status = 'cancelled'
		 WHERE id = $1 AND status = 'valid'`, orig.ID)
	if err != nil {
		return nil, fmt.Errorf("claim cancellation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyCancelled
	}
	return orig, nil
}

// ReleaseCancellation implements Store.
func (s *PostgresStore) ReleaseCancellation(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE invoice_records SET status = 'valid'
		 WHERE id = $1 AND status = 'cancelled'`, id)
	if err != nil {
		return fmt.Errorf("release cancellation: %w", err)
	}
	return nil
}

// SetVerificationRef implements Store.
func (s *PostgresStore) SetVerificationRef(ctx context.Context, id int64, ref string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE invoice_records SET verification_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("set verification ref: %w", err)
	}
	return nil
}

// SetArtifact implements Store.
func (s *PostgresStore) SetArtifact(ctx context.Context, id int64, name string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE invoice_records SET artifact_name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("set artifact name: %w", err)
	}
	return nil
}

// DeleteIfTip implements Store. Runs under the same advisory lock as Append
// so no entry can be appended after the tip check and before the delete.
func (s *PostgresStore) DeleteIfTip(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", invoiceAppendLockKey); err != nil {
		return fmt.Errorf("acquire append lock: %w", err)
	}

	tipID, _, err := chainTip(ctx, tx, "invoice_records")
	if err != nil {
		return err
	}
	if tipID != id {
		return ErrNotTip
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete tip entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit compensating delete: %w", err)
	}

	s.logger.Warn("compensating delete applied to invoice chain tip", zap.Int64("id", id))
	return nil
}

// MarkArtifactMissing implements Store.
func (s *PostgresStore) MarkArtifactMissing(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE invoice_records SET status = 'artifact_missing' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark artifact missing: %w", err)
	}
	return nil
}

// CountIssuedSince implements Store.
func (s *PostgresStore) CountIssuedSince(ctx context.Context, owner uuid.UUID, t time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoice_records
		 WHERE owner_id = $1 AND kind = 'issuance' AND created_at >= $2`, owner, t,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count issued records: %w", err)
	}
	return n, nil
}

func scanInvoice(row pgx.Row) (*Entry, error) {
	var e Entry
	var total, kind, status string
	if err := row.Scan(
		&e.ID, &e.CreatedAt, &e.Payload.Owner, &e.Payload.DocNumber,
		&e.Payload.Counterparty, &total, &kind, &e.Payload.OccurredAt,
		&e.Payload.CancelReason, &e.Payload.DocDigest, &status,
		&e.Payload.VerificationRef, &e.Payload.ArtifactName,
		&e.PrevHash, &e.CurrentHash,
	); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse stored total %q: %w", total, err)
	}
	e.Payload.Total = d
	e.Payload.Kind = Kind(kind)
	e.Payload.Status = Status(status)
	return &e, nil
}

func collectInvoices(rows pgx.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		e, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice record: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
