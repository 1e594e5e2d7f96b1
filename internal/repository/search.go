package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wolffsoft/catalog-service/internal/model"
)

// SearchCursorKey is the keyset position after which the next search page
// starts: strictly greater than (name, product_id).
type SearchCursorKey struct {
	Name      string
	ProductID string
}

// SearchRepository reads and writes the ClickHouse product_search projection.
// Writes are insert-only: the ReplacingMergeTree keeps the row with the
// highest updated_at per product_id, so an "upsert" is a new version row.
type SearchRepository interface {
	UpsertDocument(ctx context.Context, doc model.SearchDocument) error
	InsertBatch(ctx context.Context, docs []model.SearchDocument) error
	GetDocument(ctx context.Context, productID string) (*model.SearchDocument, error)
	MarkDeleted(ctx context.Context, productID string, at time.Time) error
	Search(ctx context.Context, query string, after *SearchCursorKey, limit int) ([]model.SearchDocument, error)
	TruncateAll(ctx context.Context) error
}

type searchRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewSearchRepository(ch *sqlx.DB) SearchRepository {
	return &searchRepository{ch: ch}
}

const searchColumns = `product_id, name, description, price_cents, currency, attributes, updated_at, deleted`

func (r *searchRepository) UpsertDocument(ctx context.Context, doc model.SearchDocument) error {
	const q = `
		INSERT INTO product_search
		    (product_id, name, description, price_cents, currency, attributes, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.ch.ExecContext(ctx, q,
		doc.ProductID, doc.Name, doc.Description, doc.PriceCents,
		doc.Currency, doc.Attributes, doc.UpdatedAt, doc.Deleted,
	)
	return err
}

func (r *searchRepository) InsertBatch(ctx context.Context, docs []model.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO product_search
		    (product_id, name, description, price_cents, currency, attributes, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, q,
			doc.ProductID, doc.Name, doc.Description, doc.PriceCents,
			doc.Currency, doc.Attributes, doc.UpdatedAt, doc.Deleted,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *searchRepository) GetDocument(ctx context.Context, productID string) (*model.SearchDocument, error) {
	const q = `
		SELECT ` + searchColumns + `
		FROM product_search FINAL
		WHERE product_id = ?
	`
	var doc model.SearchDocument
	err := r.ch.GetContext(ctx, &doc, q, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *searchRepository) MarkDeleted(ctx context.Context, productID string, at time.Time) error {
	// Tombstone version row; queries filter deleted = 1.
	const q = `
		INSERT INTO product_search
		    (product_id, name, description, price_cents, currency, attributes, updated_at, deleted)
		VALUES (?, '', '', 0, '', '', ?, 1)
	`
	_, err := r.ch.ExecContext(ctx, q, productID, at)
	return err
}

func (r *searchRepository) Search(ctx context.Context, query string, after *SearchCursorKey, limit int) ([]model.SearchDocument, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	q := `
		SELECT ` + searchColumns + `
		FROM product_search FINAL
		WHERE deleted = 0
		  AND (positionCaseInsensitive(name, ?) > 0 OR positionCaseInsensitive(description, ?) > 0)
	`
	args := []any{query, query}

	if after != nil {
		q += " AND (name, product_id) > (?, ?)"
		args = append(args, after.Name, after.ProductID)
	}

	q += " ORDER BY name, product_id LIMIT ?"
	args = append(args, limit)

	var docs []model.SearchDocument
	if err := r.ch.SelectContext(ctx, &docs, q, args...); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *searchRepository) TruncateAll(ctx context.Context) error {
	_, err := r.ch.ExecContext(ctx, `TRUNCATE TABLE product_search`)
	return err
}
