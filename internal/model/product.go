package model

import "time"

// Product is the DB entity persisted in the products table.
// Price is always integer minor units (cents), never floating point.
type Product struct {
	ID             string     `db:"id"` // ULID
	Name           string     `db:"name"`
	Description    string     `db:"description"`
	PriceCents     int64      `db:"price_cents"`
	Currency       string     `db:"currency"` // ISO 4217, e.g. "EUR"
	Attributes     string     `db:"attributes"` // JSON object
	PriceUpdatedAt *time.Time `db:"price_updated_at"` // watermark, only moves forward
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}
