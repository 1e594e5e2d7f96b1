package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/model"
	"github.com/wolffsoft/catalog-service/internal/repository"
	"github.com/wolffsoft/catalog-service/internal/util"
)

var (
	ErrNotFound         = errors.New("product not found")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

type CreateParams struct {
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	Attributes  map[string]string
}

// UpdateParams carries partial updates; nil means leave untouched.
type UpdateParams struct {
	Name        *string
	Description *string
	Attributes  map[string]string
}

// Service mutates the product aggregate. Every accepted mutation writes its
// outbox event in the same transaction as the aggregate write: the event is
// durably queued if and only if the mutation committed.
type Service struct {
	db       *sqlx.DB
	products repository.ProductsRepository
	outbox   repository.OutboxRepository
	log      *zap.Logger
	now      func() time.Time
}

func New(
	db *sqlx.DB,
	productsRepo repository.ProductsRepository,
	outboxRepo repository.OutboxRepository,
	log *zap.Logger,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		products: productsRepo,
		outbox:   outboxRepo,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*model.Product, error) {
	now := s.now()

	attrs := params.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	p := model.Product{
		ID:             util.New(),
		Name:           params.Name,
		Description:    params.Description,
		PriceCents:     params.PriceCents,
		Currency:       params.Currency,
		Attributes:     string(attrsJSON),
		PriceUpdatedAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ev := event.ProductCreated{
		EventID:     util.New(),
		Version:     event.Version,
		OccurredAt:  now,
		ProductID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Attributes:  attrs,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.products.Insert(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	if err := s.insertOutbox(ctx, tx, p.ID, event.TypeProductCreated, ev, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Update applies the non-nil fields. When nothing actually changes, the call
// is a no-op and no outbox row is written.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*model.Product, error) {
	now := s.now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.products.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}

	changed := false
	if params.Name != nil {
		p.Name = *params.Name
		changed = true
	}
	if params.Description != nil {
		p.Description = *params.Description
		changed = true
	}
	if params.Attributes != nil {
		attrsJSON, err := json.Marshal(params.Attributes)
		if err != nil {
			return nil, fmt.Errorf("marshal attributes: %w", err)
		}
		p.Attributes = string(attrsJSON)
		changed = true
	}

	if !changed {
		return p, nil
	}

	p.UpdatedAt = now
	if err := s.products.Update(ctx, tx, *p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	ev := event.ProductUpdated{
		EventID:     util.New(),
		Version:     event.Version,
		OccurredAt:  now,
		ProductID:   p.ID,
		Name:        params.Name,
		Description: params.Description,
		Attributes:  params.Attributes,
	}
	if err := s.insertOutbox(ctx, tx, p.ID, event.TypeProductUpdated, ev, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePrice sets a new price directly (operator path, as opposed to the
// external price-integration path). Equal price is a no-op.
func (s *Service) UpdatePrice(ctx context.Context, id string, priceCents int64, currency string) (*model.Product, error) {
	now := s.now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.products.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.Currency != currency {
		return nil, fmt.Errorf("%w: product %s is priced in %s", ErrCurrencyMismatch, id, p.Currency)
	}

	oldPrice := p.PriceCents
	if oldPrice == priceCents {
		return p, nil
	}

	if err := s.products.UpdatePrice(ctx, tx, p.ID, priceCents, now); err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}
	p.PriceCents = priceCents
	p.PriceUpdatedAt = &now
	p.UpdatedAt = now

	ev := event.ProductPriceUpdated{
		EventID:       util.New(),
		Version:       event.Version,
		OccurredAt:    now,
		ProductID:     p.ID,
		OldPriceCents: oldPrice,
		NewPriceCents: priceCents,
		Currency:      p.Currency,
	}
	if err := s.insertOutbox(ctx, tx, p.ID, event.TypeProductPriceUpdated, ev, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the aggregate and queues product.deleted.v1. The outbox row
// deliberately outlives the aggregate (no foreign key): the event may publish
// long after the row is gone.
func (s *Service) Delete(ctx context.Context, id string) error {
	now := s.now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := s.products.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}

	if err := s.products.Delete(ctx, tx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	ev := event.ProductDeleted{
		EventID:    util.New(),
		Version:    event.Version,
		OccurredAt: now,
		ProductID:  id,
	}
	if err := s.insertOutbox(ctx, tx, id, event.TypeProductDeleted, ev, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Service) insertOutbox(ctx context.Context, tx *sqlx.Tx, aggregateID, eventType string, payload any, now time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	ev := model.OutboxEvent{
		ID:            util.New(),
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Status:        model.OutboxStatusNew,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
	if err := s.outbox.Insert(ctx, tx, ev); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
