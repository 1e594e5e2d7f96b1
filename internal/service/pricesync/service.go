package pricesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/metrics"
	"github.com/wolffsoft/catalog-service/internal/model"
	"github.com/wolffsoft/catalog-service/internal/repository"
	"github.com/wolffsoft/catalog-service/internal/util"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// Outcome tells the caller what actually happened, so idempotency behavior
// is observable: a replay is success, but a distinguishable one.
type Outcome string

const (
	OutcomeApplied           Outcome = "applied"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeSkippedOutOfOrder Outcome = "skipped_out_of_order"
)

type SyncRequest struct {
	RequestID   string // external idempotency key
	ProductID   string
	PriceCents  int64
	Currency    string
	EffectiveAt time.Time // causal timestamp of the external change
	Source      string
}

type Result struct {
	Outcome Outcome
	Product model.Product
}

// Service ingests externally pushed price updates: inbox ledger for dedup,
// per-product watermark for ordering, outbox row on actual change, all in
// one transaction.
type Service struct {
	db       *sqlx.DB
	products repository.ProductsRepository
	inbox    repository.InboxRepository
	outbox   repository.OutboxRepository
	log      *zap.Logger
	now      func() time.Time
}

func New(
	db *sqlx.DB,
	productsRepo repository.ProductsRepository,
	inboxRepo repository.InboxRepository,
	outboxRepo repository.OutboxRepository,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		products: productsRepo,
		inbox:    inboxRepo,
		outbox:   outboxRepo,
		log:      log,
		now:      time.Now,
	}
}

// SyncPrice applies an external price update. Duplicated or out-of-order
// deliveries are safe: the first delivery wins, replays and stale updates
// are no-ops reported through the Outcome.
func (s *Service) SyncPrice(ctx context.Context, req SyncRequest) (*Result, error) {
	now := s.now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.products.GetForUpdate(ctx, tx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		metrics.PriceSyncTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, req.ProductID)
	}

	// Hard precondition, checked before the inbox write: a mismatched
	// currency is a caller bug, not a retryable state.
	if p.Currency != req.Currency {
		metrics.PriceSyncTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: product %s is priced in %s, got %s",
			ErrCurrencyMismatch, p.ID, p.Currency, req.Currency)
	}

	err = s.inbox.Insert(ctx, tx, model.InboxRecord{
		ID:          util.New(),
		RequestID:   req.RequestID,
		ProductID:   req.ProductID,
		EffectiveAt: req.EffectiveAt,
		ReceivedAt:  now,
		Source:      req.Source,
	})
	if errors.Is(err, repository.ErrDuplicateRequest) {
		// Idempotency boundary: the same request id was processed before.
		metrics.PriceSyncTotal.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return &Result{Outcome: OutcomeDuplicate, Product: *p}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert inbox: %w", err)
	}

	// Out-of-order delivery: keep the inbox row as audit trail but do not
	// apply. Equal effectiveAt is treated as not-advanced (strict check).
	watermark := p.PriceUpdatedAt
	if watermark != nil && req.EffectiveAt.Before(*watermark) {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		metrics.PriceSyncTotal.WithLabelValues(string(OutcomeSkippedOutOfOrder)).Inc()
		return &Result{Outcome: OutcomeSkippedOutOfOrder, Product: *p}, nil
	}

	oldPrice := p.PriceCents
	priceChanged := oldPrice != req.PriceCents
	advanced := watermark == nil || req.EffectiveAt.After(*watermark)

	if !priceChanged && !advanced {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		metrics.PriceSyncTotal.WithLabelValues(string(OutcomeSkippedOutOfOrder)).Inc()
		return &Result{Outcome: OutcomeSkippedOutOfOrder, Product: *p}, nil
	}

	if err := s.products.UpdatePrice(ctx, tx, p.ID, req.PriceCents, req.EffectiveAt); err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}
	p.PriceCents = req.PriceCents
	p.PriceUpdatedAt = &req.EffectiveAt
	p.UpdatedAt = req.EffectiveAt

	if priceChanged {
		ev := event.ProductPriceUpdated{
			EventID:       util.New(),
			Version:       event.Version,
			OccurredAt:    now,
			ProductID:     p.ID,
			OldPriceCents: oldPrice,
			NewPriceCents: req.PriceCents,
			Currency:      p.Currency,
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal price-updated payload: %w", err)
		}
		if err := s.outbox.Insert(ctx, tx, model.OutboxEvent{
			ID:            util.New(),
			AggregateID:   p.ID,
			EventType:     event.TypeProductPriceUpdated,
			Payload:       raw,
			Status:        model.OutboxStatusNew,
			CreatedAt:     now,
			NextAttemptAt: now,
		}); err != nil {
			return nil, fmt.Errorf("insert outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.log.Info("price sync applied",
		zap.String("product_id", p.ID),
		zap.String("request_id", req.RequestID),
		zap.Int64("old_price_cents", oldPrice),
		zap.Int64("new_price_cents", req.PriceCents),
	)
	metrics.PriceSyncTotal.WithLabelValues(string(OutcomeApplied)).Inc()

	return &Result{Outcome: OutcomeApplied, Product: *p}, nil
}
