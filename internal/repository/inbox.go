package repository

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/wolffsoft/catalog-service/internal/model"
)

// ErrDuplicateRequest means the idempotency key was seen before. The caller
// treats this as a successful no-op, not a failure.
var ErrDuplicateRequest = errors.New("duplicate price update request")

// InboxRepository persists the append-only price_update_inbox ledger.
// Rows are created once, never updated, never deleted by normal flow.
type InboxRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, rec model.InboxRecord) error
}

type InboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewInboxRepository(db *sqlx.DB) *InboxRepositoryImpl {
	return &InboxRepositoryImpl{db: db}
}

// Insert adds a ledger row. A UNIQUE violation on request_id maps to
// ErrDuplicateRequest; the row already present stays untouched.
func (r *InboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, rec model.InboxRecord) error {
	const q = `
		INSERT INTO price_update_inbox
		    (id, request_id, product_id, effective_at, received_at, source)
		VALUES
		    (?,  ?,          ?,          ?,            ?,           ?)
	`
	_, err := tx.ExecContext(ctx, q,
		rec.ID, rec.RequestID, rec.ProductID, rec.EffectiveAt, rec.ReceivedAt, rec.Source,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}
