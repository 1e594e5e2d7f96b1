package model

import "time"

type OutboxStatus string

const (
	OutboxStatusNew        OutboxStatus = "NEW"
	OutboxStatusInProgress OutboxStatus = "IN_PROGRESS"
	OutboxStatusPublished  OutboxStatus = "PUBLISHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

func (s OutboxStatus) String() string {
	return string(s)
}

func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxStatusNew, OutboxStatusInProgress, OutboxStatusPublished, OutboxStatusFailed:
		return true
	}
	return false
}

// OutboxEvent is the DB entity persisted in the outbox_event table.
// The owning transaction of the domain write creates the row; the publisher
// worker is the only mutator of status/lock fields after that.
type OutboxEvent struct {
	ID              string       `db:"id"` // ULID
	AggregateID     string       `db:"aggregate_id"`
	EventType       string       `db:"event_type"`
	Payload         []byte       `db:"payload"` // JSON-encoded event
	Status          OutboxStatus `db:"status"`
	CreatedAt       time.Time    `db:"created_at"`
	PublishAttempts int          `db:"publish_attempts"`
	NextAttemptAt   time.Time    `db:"next_attempt_at"`
	PublishedAt     *time.Time   `db:"published_at"`
	LockedBy        *string      `db:"locked_by"`
	LockedAt        *time.Time   `db:"locked_at"`
	LastError       *string      `db:"last_error"`
}
