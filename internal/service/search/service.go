package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/model"
	"github.com/wolffsoft/catalog-service/internal/repository"
	"github.com/wolffsoft/catalog-service/internal/util"
)

// Page is one keyset-paginated slice of search results. NextCursor is empty
// on the last page.
type Page struct {
	Results    []model.SearchDocument
	NextCursor string
}

// Service maintains the ClickHouse projection from product events and
// answers text searches over it. The projection is eventually consistent
// with MySQL; events arrive at-least-once, so every apply is idempotent
// (version rows keyed by updated_at).
type Service struct {
	search   repository.SearchRepository
	products repository.ProductsRepository
	log      *zap.Logger
	now      func() time.Time
}

func New(searchRepo repository.SearchRepository, productsRepo repository.ProductsRepository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		search:   searchRepo,
		products: productsRepo,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Search(ctx context.Context, query, cursor string, limit int) (*Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var after *repository.SearchCursorKey
	if cursor != "" {
		name, productID, err := util.DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		after = &repository.SearchCursorKey{Name: name, ProductID: productID}
	}

	docs, err := s.search.Search(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}

	page := &Page{Results: docs}
	if len(docs) == limit {
		last := docs[len(docs)-1]
		page.NextCursor = util.EncodeCursor(last.Name, last.ProductID)
	}
	return page, nil
}

// Apply routes a decoded product event into the projection.
func (s *Service) Apply(ctx context.Context, decoded any) error {
	switch ev := decoded.(type) {
	case *event.ProductCreated:
		return s.applyCreated(ctx, ev)
	case *event.ProductUpdated:
		return s.applyUpdated(ctx, ev)
	case *event.ProductPriceUpdated:
		return s.applyPriceUpdated(ctx, ev)
	case *event.ProductDeleted:
		return s.search.MarkDeleted(ctx, ev.ProductID, ev.OccurredAt)
	default:
		return fmt.Errorf("unsupported event payload %T", decoded)
	}
}

func (s *Service) applyCreated(ctx context.Context, ev *event.ProductCreated) error {
	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return err
	}
	return s.search.UpsertDocument(ctx, model.SearchDocument{
		ProductID:   ev.ProductID,
		Name:        ev.Name,
		Description: ev.Description,
		PriceCents:  ev.PriceCents,
		Currency:    ev.Currency,
		Attributes:  string(attrs),
		UpdatedAt:   ev.OccurredAt,
	})
}

// applyUpdated is a read-modify-write: the update event carries only changed
// fields, so the current document is the base for the new version row. An
// update for a product never projected (events raced) still yields a partial
// document; the next full event heals it.
func (s *Service) applyUpdated(ctx context.Context, ev *event.ProductUpdated) error {
	doc, err := s.search.GetDocument(ctx, ev.ProductID)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &model.SearchDocument{ProductID: ev.ProductID}
	}

	if ev.Name != nil {
		doc.Name = *ev.Name
	}
	if ev.Description != nil {
		doc.Description = *ev.Description
	}
	if ev.Attributes != nil {
		attrs, err := json.Marshal(ev.Attributes)
		if err != nil {
			return err
		}
		doc.Attributes = string(attrs)
	}
	doc.UpdatedAt = ev.OccurredAt
	doc.Deleted = 0

	return s.search.UpsertDocument(ctx, *doc)
}

func (s *Service) applyPriceUpdated(ctx context.Context, ev *event.ProductPriceUpdated) error {
	doc, err := s.search.GetDocument(ctx, ev.ProductID)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = &model.SearchDocument{ProductID: ev.ProductID, Currency: ev.Currency}
	}

	doc.PriceCents = ev.NewPriceCents
	doc.Currency = ev.Currency
	doc.UpdatedAt = ev.OccurredAt
	doc.Deleted = 0

	return s.search.UpsertDocument(ctx, *doc)
}

// Reindex rebuilds the whole projection straight from MySQL, bypassing the
// event stream. Used by the admin reindex command after projection drift or
// a ClickHouse reset.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if err := s.search.TruncateAll(ctx); err != nil {
		return 0, fmt.Errorf("truncate projection: %w", err)
	}

	const flushSize = 500
	now := s.now()

	var (
		batch []model.SearchDocument
		total int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.search.InsertBatch(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.products.ListAll(ctx, func(p model.Product) error {
		batch = append(batch, model.SearchDocument{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			PriceCents:  p.PriceCents,
			Currency:    p.Currency,
			Attributes:  p.Attributes,
			UpdatedAt:   now,
		})
		if len(batch) >= flushSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}

	s.log.Info("projection reindexed", zap.Int("products", total))
	return total, nil
}
