package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/metrics"
	"github.com/wolffsoft/catalog-service/internal/model"
	"github.com/wolffsoft/catalog-service/internal/outbox"
	"github.com/wolffsoft/catalog-service/internal/repository"
)

// EventSink is the publish boundary: a synchronous confirmed send to one
// channel. The Kafka producer satisfies it; tests use a fake.
type EventSink interface {
	Publish(ctx context.Context, topic, key string, value []byte, eventType, eventID string) error
}

// Publisher drains the outbox on a fixed interval. Many instances may run
// against the same table; correctness comes from the store's conditional
// claim, not from any coordination between instances.
//
// Per row: NEW/FAILED -(claim)-> IN_PROGRESS -(success)-> PUBLISHED,
// -(transient failure)-> FAILED with backoff, -(permanent failure)-> dead
// letter, -(stale lock)-> FAILED immediately retryable via the sweep.
type Publisher struct {
	Store    repository.OutboxRepository
	Registry *event.Registry
	Sink     EventSink
	Log      *zap.Logger

	InstanceID      string
	BatchSize       int
	PollInterval    time.Duration
	StaleLockMaxAge time.Duration

	now func() time.Time
}

func NewPublisher(
	store repository.OutboxRepository,
	registry *event.Registry,
	sink EventSink,
	log *zap.Logger,
	instanceID string,
	batchSize int,
	pollInterval time.Duration,
	staleLockMaxAge time.Duration,
) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if staleLockMaxAge <= 0 {
		staleLockMaxAge = time.Minute
	}
	return &Publisher{
		Store:           store,
		Registry:        registry,
		Sink:            sink,
		Log:             log,
		InstanceID:      instanceID,
		BatchSize:       batchSize,
		PollInterval:    pollInterval,
		StaleLockMaxAge: staleLockMaxAge,
		now:             time.Now,
	}
}

// Run blocks until ctx is cancelled. Cycles never overlap: each runs to
// completion before the ticker is consulted again, which naturally bounds
// concurrent load per instance.
func (p *Publisher) Run(ctx context.Context) error {
	p.Log.Info("outbox publisher started",
		zap.String("instance_id", p.InstanceID),
		zap.Int("batch_size", p.BatchSize),
		zap.Duration("poll_interval", p.PollInterval),
	)

	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("outbox publisher stopping")
			return nil
		case <-ticker.C:
			if err := p.Cycle(ctx); err != nil {
				p.Log.Error("publish cycle failed", zap.Error(err))
			}
		}
	}
}

// Cycle is one poll iteration: sweep stale locks, select ready rows, claim,
// re-read what was actually claimed, publish each sequentially.
func (p *Publisher) Cycle(ctx context.Context) error {
	now := p.now()

	recovered, err := p.Store.RecoverStaleLocks(ctx, now.Add(-p.StaleLockMaxAge), now)
	if err != nil {
		return fmt.Errorf("recover stale locks: %w", err)
	}
	if recovered > 0 {
		metrics.OutboxStaleRecoveredTotal.Add(float64(recovered))
		p.Log.Warn("recovered stale locks", zap.Int64("count", recovered))
	}

	ids, err := p.Store.FindReadyIDs(ctx, now, p.BatchSize)
	if err != nil {
		return fmt.Errorf("find ready ids: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	if _, err := p.Store.Claim(ctx, ids, p.InstanceID, now); err != nil {
		return fmt.Errorf("claim: %w", err)
	}

	// Re-read: a concurrent instance may have claimed some of the ids
	// between select and claim, so the held set can be smaller.
	claimed, err := p.Store.FindClaimed(ctx, p.InstanceID)
	if err != nil {
		return fmt.Errorf("find claimed: %w", err)
	}

	for _, ev := range claimed {
		p.publishOne(ctx, ev)
	}
	return nil
}

func (p *Publisher) publishOne(ctx context.Context, ev model.OutboxEvent) {
	attempts := ev.PublishAttempts + 1

	topic, err := p.Registry.Topic(ev.EventType)
	if err != nil {
		p.deadLetter(ctx, ev, err)
		return
	}

	// Decode before publish: a row that cannot round-trip through its
	// registered schema can never succeed and goes straight to dead letter.
	decoded, err := p.Registry.Decode(ev.EventType, ev.Payload)
	if err != nil {
		p.deadLetter(ctx, ev, err)
		return
	}
	value, err := json.Marshal(decoded)
	if err != nil {
		p.deadLetter(ctx, ev, err)
		return
	}

	if err := p.Sink.Publish(ctx, topic, ev.AggregateID, value, ev.EventType, ev.ID); err != nil {
		next := p.now().Add(outbox.Delay(attempts))
		if mErr := p.Store.MarkFailed(ctx, ev.ID, attempts, next, err.Error()); mErr != nil {
			p.Log.Error("mark failed errored", zap.String("id", ev.ID), zap.Error(mErr))
		}
		metrics.OutboxFailuresTotal.WithLabelValues(ev.EventType, "transient").Inc()
		p.Log.Warn("publish failed",
			zap.String("id", ev.ID),
			zap.String("event_type", ev.EventType),
			zap.Int("attempts", attempts),
			zap.Time("next_attempt_at", next),
			zap.Error(err),
		)
		return
	}

	if err := p.Store.MarkPublished(ctx, ev.ID, attempts, p.now()); err != nil {
		// The send went out; the row stays IN_PROGRESS until the stale
		// sweep returns it, and the event will be re-published. Consumers
		// already tolerate at-least-once.
		p.Log.Error("mark published errored", zap.String("id", ev.ID), zap.Error(err))
		return
	}
	metrics.OutboxPublishedTotal.WithLabelValues(ev.EventType).Inc()
}

func (p *Publisher) deadLetter(ctx context.Context, ev model.OutboxEvent, cause error) {
	metrics.OutboxFailuresTotal.WithLabelValues(ev.EventType, "permanent").Inc()
	p.Log.Error("dead-lettering unpublishable event",
		zap.String("id", ev.ID),
		zap.String("event_type", ev.EventType),
		zap.Bool("unknown_type", errors.Is(cause, event.ErrUnknownEventType)),
		zap.Error(cause),
	)
	if err := p.Store.MoveToDeadLetter(ctx, ev, cause.Error()); err != nil {
		p.Log.Error("move to dead letter errored", zap.String("id", ev.ID), zap.Error(err))
	}
}
