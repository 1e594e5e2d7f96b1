package model

import "time"

// InboxRecord is an append-only dedup/audit row in price_update_inbox.
// request_id carries a UNIQUE constraint; a second insert with the same
// request id fails instead of overwriting.
type InboxRecord struct {
	ID          string    `db:"id"` // ULID
	RequestID   string    `db:"request_id"`
	ProductID   string    `db:"product_id"`
	EffectiveAt time.Time `db:"effective_at"`
	ReceivedAt  time.Time `db:"received_at"`
	Source      string    `db:"source"`
}
