package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wolffsoft/catalog-service/internal/model"
)

// ProductsRepository defines persistence for the products table.
// Getters return (nil, nil) when the row does not exist; turning that into
// a not-found error is the service's job.
type ProductsRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, p model.Product) error
	GetByID(ctx context.Context, id string) (*model.Product, error)
	// GetForUpdate loads the row with a FOR UPDATE lock inside tx, so the
	// price watermark check and the following write are race-free.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Product, error)
	Update(ctx context.Context, tx *sqlx.Tx, p model.Product) error
	UpdatePrice(ctx context.Context, tx *sqlx.Tx, id string, priceCents int64, priceUpdatedAt time.Time) error
	Delete(ctx context.Context, tx *sqlx.Tx, id string) error
	ListAll(ctx context.Context, fn func(model.Product) error) error
}

type ProductsRepositoryImpl struct {
	db *sqlx.DB
}

func NewProductsRepository(db *sqlx.DB) *ProductsRepositoryImpl {
	return &ProductsRepositoryImpl{db: db}
}

const productColumns = `id, name, description, price_cents, currency, attributes, price_updated_at, created_at, updated_at`

func (r *ProductsRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, p model.Product) error {
	const q = `
		INSERT INTO products
		    (id, name, description, price_cents, currency, attributes, price_updated_at, created_at, updated_at)
		VALUES
		    (?,  ?,    ?,           ?,           ?,        ?,          ?,                ?,          ?)
	`
	_, err := tx.ExecContext(ctx, q,
		p.ID, p.Name, p.Description, p.PriceCents, p.Currency, p.Attributes,
		p.PriceUpdatedAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *ProductsRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := r.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductsRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Product, error) {
	var p model.Product
	err := tx.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductsRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, p model.Product) error {
	const q = `
		UPDATE products
		SET name = ?, description = ?, attributes = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := tx.ExecContext(ctx, q, p.Name, p.Description, p.Attributes, p.UpdatedAt, p.ID)
	return err
}

func (r *ProductsRepositoryImpl) UpdatePrice(ctx context.Context, tx *sqlx.Tx, id string, priceCents int64, priceUpdatedAt time.Time) error {
	const q = `
		UPDATE products
		SET price_cents = ?, price_updated_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := tx.ExecContext(ctx, q, priceCents, priceUpdatedAt, priceUpdatedAt, id)
	return err
}

func (r *ProductsRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	return err
}

// ListAll streams every product row through fn, for projection rebuilds.
func (r *ProductsRepositoryImpl) ListAll(ctx context.Context, fn func(model.Product) error) error {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Product
		if err := rows.StructScan(&p); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}
