package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/kafka"
	"github.com/wolffsoft/catalog-service/internal/metrics"
	"github.com/wolffsoft/catalog-service/internal/service/search"
)

// Projector consumes product events and applies them to the ClickHouse
// search projection. Delivery is at-least-once: commits happen only after a
// successful apply, and every apply is idempotent, so redelivery is safe.
type Projector struct {
	Consumer *kafka.Consumer
	Registry *event.Registry
	Search   *search.Service
	Log      *zap.Logger

	// CommitOnPoison controls whether undecodable messages are committed
	// and skipped (default) or left for broker-side redelivery/DLT infra.
	CommitOnPoison bool
}

func NewProjector(consumer *kafka.Consumer, registry *event.Registry, searchSvc *search.Service, log *zap.Logger) *Projector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Projector{
		Consumer:       consumer,
		Registry:       registry,
		Search:         searchSvc,
		Log:            log,
		CommitOnPoison: true,
	}
}

// Run blocks until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) error {
	p.Log.Info("projector started")
	for {
		m, err := p.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.Log.Info("projector stopping")
				return nil
			}
			p.Log.Error("kafka fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}
		p.processOne(ctx, m)
	}
}

func (p *Projector) processOne(ctx context.Context, m kafka.Message) {
	eventType := kafka.Header(m, "event_type")

	decoded, err := p.Registry.Decode(eventType, m.Value)
	if err != nil {
		// Poison message: it will never decode, so retrying is pointless.
		metrics.ProjectedEventsTotal.WithLabelValues(eventType, "poison").Inc()
		p.Log.Warn("skipping undecodable message",
			zap.String("event_type", eventType),
			zap.Int64("offset", m.Offset),
			zap.Bool("unknown_type", errors.Is(err, event.ErrUnknownEventType)),
			zap.Error(err),
		)
		if p.CommitOnPoison {
			if cErr := p.Consumer.Commit(ctx, m); cErr != nil {
				p.Log.Error("commit failed", zap.Error(cErr))
			}
		}
		return
	}

	if err := p.Search.Apply(ctx, decoded); err != nil {
		// No commit: the broker redelivers and the idempotent apply makes
		// the retry safe.
		metrics.ProjectedEventsTotal.WithLabelValues(eventType, "failed").Inc()
		p.Log.Error("projection apply failed",
			zap.String("event_type", eventType),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		return
	}

	metrics.ProjectedEventsTotal.WithLabelValues(eventType, "applied").Inc()
	if err := p.Consumer.Commit(ctx, m); err != nil {
		p.Log.Error("commit failed", zap.Error(err))
	}
}
