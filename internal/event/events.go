package event

import "time"

// Logical event type strings. The version suffix is part of the type: a
// breaking payload change gets a new type, not a mutated schema.
const (
	TypeProductCreated      = "product.created.v1"
	TypeProductUpdated      = "product.updated.v1"
	TypeProductPriceUpdated = "product.price-updated.v1"
	TypeProductDeleted      = "product.deleted.v1"
)

const Version = 1

type ProductCreated struct {
	EventID     string            `json:"event_id"`
	Version     int               `json:"version"`
	OccurredAt  time.Time         `json:"occurred_at"`
	ProductID   string            `json:"product_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PriceCents  int64             `json:"price_cents"`
	Currency    string            `json:"currency"`
	Attributes  map[string]string `json:"attributes"`
}

// ProductUpdated carries only the fields that changed; nil means untouched.
type ProductUpdated struct {
	EventID     string            `json:"event_id"`
	Version     int               `json:"version"`
	OccurredAt  time.Time         `json:"occurred_at"`
	ProductID   string            `json:"product_id"`
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type ProductPriceUpdated struct {
	EventID       string    `json:"event_id"`
	Version       int       `json:"version"`
	OccurredAt    time.Time `json:"occurred_at"`
	ProductID     string    `json:"product_id"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	Currency      string    `json:"currency"`
}

type ProductDeleted struct {
	EventID    string    `json:"event_id"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	ProductID  string    `json:"product_id"`
}
