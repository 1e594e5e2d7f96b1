package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wolffsoft/catalog-service/internal/model"
)

// maxLastErrorLen caps the stored error text so a pathological broker error
// cannot blow up the row.
const maxLastErrorLen = 4000

const staleLockError = "recovered from stale lock"

// OutboxRepository defines persistence for the outbox_event table.
//
// Status transitions are NEW -> IN_PROGRESS -> {PUBLISHED | FAILED} and
// FAILED -> IN_PROGRESS (retry); PUBLISHED is terminal. A row is claimable
// iff status is NEW or FAILED and next_attempt_at is due.
type OutboxRepository interface {
	// Insert writes a single outbox row inside the caller's transaction.
	// If tx is nil, it opens/commits an internal transaction.
	Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error

	// FindReadyIDs returns up to limit claimable row ids, oldest first.
	FindReadyIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	// Claim conditionally transitions the given rows to IN_PROGRESS under
	// this instance's lock. Rows grabbed by a concurrent publisher are
	// silently skipped; the returned count is the number actually claimed.
	Claim(ctx context.Context, ids []string, instanceID string, now time.Time) (int64, error)

	// FindClaimed re-reads the rows this instance actually holds.
	FindClaimed(ctx context.Context, instanceID string) ([]model.OutboxEvent, error)

	// MarkPublished records terminal success and clears lock and error fields.
	MarkPublished(ctx context.Context, id string, attempts int, publishedAt time.Time) error

	// MarkFailed returns a row to FAILED with the next retry time and a
	// truncated error message, clearing the lock.
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error

	// RecoverStaleLocks bulk-returns IN_PROGRESS rows locked before cutoff
	// to FAILED with next_attempt_at = now. Sole crash-recovery mechanism.
	RecoverStaleLocks(ctx context.Context, cutoff, now time.Time) (int64, error)

	// MoveToDeadLetter copies a permanently unpublishable row into
	// outbox_dead_letters and removes it from outbox_event, atomically.
	MoveToDeadLetter(ctx context.Context, ev model.OutboxEvent, reason string) error
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox_event
		    (id, aggregate_id, event_type, payload, status, created_at, publish_attempts, next_attempt_at)
		VALUES
		    (?,  ?,            ?,          ?,       'NEW',  ?,          0,               ?)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			ev.ID, ev.AggregateID, ev.EventType, ev.Payload, ev.CreatedAt, ev.NextAttemptAt,
		)
		return err
	})
}

func (r *OutboxRepositoryImpl) FindReadyIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const q = `
		SELECT id
		FROM outbox_event
		WHERE status IN ('NEW', 'FAILED')
		  AND next_attempt_at <= ?
		ORDER BY created_at
		LIMIT ?
	`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q, now, limit); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *OutboxRepositoryImpl) Claim(ctx context.Context, ids []string, instanceID string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// Single conditional update: the claimable predicate is re-checked so a
	// row grabbed by another instance since FindReadyIDs is skipped, not
	// stolen.
	const base = `
		UPDATE outbox_event
		SET status = 'IN_PROGRESS',
		    locked_by = ?,
		    locked_at = ?
		WHERE id IN (?)
		  AND status IN ('NEW', 'FAILED')
		  AND next_attempt_at <= ?
	`
	query, args, err := sqlx.In(base, instanceID, now, ids, now)
	if err != nil {
		return 0, err
	}
	query = r.db.Rebind(query)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) FindClaimed(ctx context.Context, instanceID string) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, aggregate_id, event_type, payload, status, created_at,
		       publish_attempts, next_attempt_at, published_at, locked_by, locked_at, last_error
		FROM outbox_event
		WHERE status = 'IN_PROGRESS'
		  AND locked_by = ?
		ORDER BY created_at
	`
	var rows []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &rows, q, instanceID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, id string, attempts int, publishedAt time.Time) error {
	const q = `
		UPDATE outbox_event
		SET status = 'PUBLISHED',
		    published_at = ?,
		    publish_attempts = ?,
		    locked_by = NULL,
		    locked_at = NULL,
		    last_error = NULL
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, publishedAt, attempts, id)
	return err
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	if len(lastError) > maxLastErrorLen {
		lastError = lastError[:maxLastErrorLen]
	}
	const q = `
		UPDATE outbox_event
		SET status = 'FAILED',
		    publish_attempts = ?,
		    next_attempt_at = ?,
		    last_error = ?,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, attempts, nextAttemptAt, lastError, id)
	return err
}

func (r *OutboxRepositoryImpl) RecoverStaleLocks(ctx context.Context, cutoff, now time.Time) (int64, error) {
	const q = `
		UPDATE outbox_event
		SET status = 'FAILED',
		    next_attempt_at = ?,
		    last_error = ?,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE status = 'IN_PROGRESS'
		  AND locked_at IS NOT NULL
		  AND locked_at < ?
	`
	res, err := r.db.ExecContext(ctx, q, now, staleLockError, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) MoveToDeadLetter(ctx context.Context, ev model.OutboxEvent, reason string) error {
	if len(reason) > maxLastErrorLen {
		reason = reason[:maxLastErrorLen]
	}
	const insertQ = `
		INSERT INTO outbox_dead_letters
		    (id, aggregate_id, event_type, payload, publish_attempts, last_error, created_at, dead_lettered_at)
		SELECT id, aggregate_id, event_type, payload, publish_attempts, ?, created_at, NOW()
		FROM outbox_event
		WHERE id = ?
	`
	const deleteQ = `DELETE FROM outbox_event WHERE id = ?`

	return r.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, insertQ, reason, ev.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, deleteQ, ev.ID)
		return err
	})
}
