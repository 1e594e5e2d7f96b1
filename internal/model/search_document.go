package model

import "time"

// SearchDocument is a row of the ClickHouse product_search projection.
// The table is a ReplacingMergeTree keyed by product_id and versioned by
// updated_at; queries read the latest version per product.
type SearchDocument struct {
	ProductID   string    `db:"product_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	PriceCents  int64     `db:"price_cents"`
	Currency    string    `db:"currency"`
	Attributes  string    `db:"attributes"`
	UpdatedAt   time.Time `db:"updated_at"`
	Deleted     uint8     `db:"deleted"`
}
