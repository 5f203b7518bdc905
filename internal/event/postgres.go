package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/hashchain"
	"github.com/inaltera/inaltera/internal/ledger"
)

// eventAppendLockKey serializes appends on the audit chain. Distinct from the
// invoice ledger's key: the two chains never block each other.
const eventAppendLockKey = int64(7_412_090_002)

const eventColumns = `id, created_at, actor_id, category, description, level,
	occurred_at, prev_hash, current_hash`

// PostgresStore persists the audit ledger to the audit_events table.
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
		`SELECT `+eventColumns+` FROM audit_events ORDER BY id DESC LIMIT 1`)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEmpty
	}
	return e, err
}

// Append implements ledger.Store. Same discipline as the invoice store:
// advisory lock, stale-tip check, dense id assignment, single transaction.
func (s *PostgresStore) Append(ctx context.Context, e *Entry) (*Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", eventAppendLockKey); err != nil {
		return nil, fmt.Errorf("acquire append lock: %w", err)
	}

	var tipID int64
	tipHash := hashchain.Genesis
	err = tx.QueryRow(ctx,
		"SELECT id, current_hash FROM audit_events ORDER BY id DESC LIMIT 1",
	).Scan(&tipID, &tipHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	if e.PrevHash != tipHash {
		return nil, ledger.ErrConcurrentAppend
	}

	stored := *e
	stored.ID = tipID + 1
	stored.CreatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_events (id, created_at, actor_id, category, description,
			level, occurred_at, prev_hash, current_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, stored.CreatedAt, stored.Payload.Actor,
		string(stored.Payload.Category), stored.Payload.Description,
		string(stored.Payload.Level), stored.Payload.OccurredAt,
		stored.PrevHash, stored.CurrentHash,
	); err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit append: %w", err)
	}
	return &stored, nil
}

// Get implements ledger.Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return e, err
}

// Range implements ledger.Store.
func (s *PostgresStore) Range(ctx context.Context, from, to int64) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM audit_events
		 WHERE id BETWEEN $1 AND $2 ORDER BY id ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query audit range: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindByHash implements ledger.Store.
func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE current_hash = $1`, hash)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return e, err
}

// ListByOwner implements ledger.Store.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner uuid.UUID, limit int) ([]*Entry, error) {
	q := `SELECT ` + eventColumns + ` FROM audit_events WHERE actor_id = $1 ORDER BY id DESC`
	args := []any{owner}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events by actor: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordFailure implements Store.
func (s *PostgresStore) RecordFailure(ctx context.Context, p Payload, cause string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_failures (actor_id, category, description, level, occurred_at, cause, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.Actor, string(p.Category), p.Description, string(p.Level),
		p.OccurredAt, cause, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record event failure: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*Entry, error) {
	var e Entry
	var category, level string
	if err := row.Scan(
		&e.ID, &e.CreatedAt, &e.Payload.Actor, &category,
		&e.Payload.Description, &level, &e.Payload.OccurredAt,
		&e.PrevHash, &e.CurrentHash,
	); err != nil {
		return nil, err
	}
	e.Payload.Category = Category(category)
	e.Payload.Level = Level(level)
	return &e, nil
}
