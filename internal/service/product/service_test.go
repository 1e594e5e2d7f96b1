package product

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolffsoft/catalog-service/internal/event"
	"github.com/wolffsoft/catalog-service/internal/model"
)

// ---- fakes ----

type fakeProducts struct {
	product *model.Product // returned by getters; nil = not found

	inserted     []model.Product
	updated      []model.Product
	priceUpdates []int64
	deleted      []string
}

func (f *fakeProducts) Insert(ctx context.Context, tx *sqlx.Tx, p model.Product) error {
	f.inserted = append(f.inserted, p)
	return nil
}
func (f *fakeProducts) GetByID(ctx context.Context, id string) (*model.Product, error) {
	if f.product == nil {
		return nil, nil
	}
	cp := *f.product
	return &cp, nil
}
func (f *fakeProducts) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Product, error) {
	return f.GetByID(ctx, id)
}
func (f *fakeProducts) Update(ctx context.Context, tx *sqlx.Tx, p model.Product) error {
	f.updated = append(f.updated, p)
	return nil
}
func (f *fakeProducts) UpdatePrice(ctx context.Context, tx *sqlx.Tx, id string, priceCents int64, priceUpdatedAt time.Time) error {
	f.priceUpdates = append(f.priceUpdates, priceCents)
	return nil
}
func (f *fakeProducts) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeProducts) ListAll(ctx context.Context, fn func(model.Product) error) error { return nil }

type fakeOutbox struct {
	inserted []model.OutboxEvent
}

func (f *fakeOutbox) Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	f.inserted = append(f.inserted, ev)
	return nil
}
func (f *fakeOutbox) FindReadyIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeOutbox) Claim(ctx context.Context, ids []string, instanceID string, now time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeOutbox) FindClaimed(ctx context.Context, instanceID string) ([]model.OutboxEvent, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(ctx context.Context, id string, attempts int, publishedAt time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	return nil
}
func (f *fakeOutbox) RecoverStaleLocks(ctx context.Context, cutoff, now time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeOutbox) MoveToDeadLetter(ctx context.Context, ev model.OutboxEvent, reason string) error {
	return nil
}

// ---- helpers ----

func newServiceForTest(t *testing.T, products *fakeProducts, outbox *fakeOutbox) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := New(sqlx.NewDb(db, "mysql"), products, outbox, nil)
	return svc, mock
}

var (
	testTime  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	productID = "01HXPRODUCT000000000000000"
)

func existingProduct() *model.Product {
	ts := testTime.Add(-time.Hour)
	return &model.Product{
		ID:             productID,
		Name:           "Walnut Desk",
		Description:    "standing desk",
		PriceCents:     49900,
		Currency:       "EUR",
		Attributes:     `{"color":"walnut"}`,
		PriceUpdatedAt: &ts,
		CreatedAt:      testTime.Add(-24 * time.Hour),
		UpdatedAt:      ts,
	}
}

func strp(s string) *string { return &s }

// ---- tests ----

func TestCreateWritesOutboxInSameTx(t *testing.T) {
	products := &fakeProducts{}
	outbox := &fakeOutbox{}
	svc, mock := newServiceForTest(t, products, outbox)
	svc.now = func() time.Time { return testTime }

	mock.ExpectBegin()
	mock.ExpectCommit()

	p, err := svc.Create(context.Background(), CreateParams{
		Name:       "Monitor Arm",
		PriceCents: 7900,
		Currency:   "EUR",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, testTime, p.CreatedAt)

	require.Len(t, products.inserted, 1)
	require.Len(t, outbox.inserted, 1)

	row := outbox.inserted[0]
	assert.Equal(t, event.TypeProductCreated, row.EventType)
	assert.Equal(t, p.ID, row.AggregateID)
	assert.Equal(t, model.OutboxStatusNew, row.Status)
	assert.Equal(t, testTime, row.NextAttemptAt)

	var payload event.ProductCreated
	require.NoError(t, json.Unmarshal(row.Payload, &payload))
	assert.Equal(t, "Monitor Arm", payload.Name)
	assert.Equal(t, int64(7900), payload.PriceCents)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newServiceForTest(t, &fakeProducts{}, &fakeOutbox{})

	_, err := svc.Get(context.Background(), productID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdate(t *testing.T) {
	t.Run("partial update writes outbox", func(t *testing.T) {
		products := &fakeProducts{product: existingProduct()}
		outbox := &fakeOutbox{}
		svc, mock := newServiceForTest(t, products, outbox)
		svc.now = func() time.Time { return testTime }

		mock.ExpectBegin()
		mock.ExpectCommit()

		p, err := svc.Update(context.Background(), productID, UpdateParams{
			Name: strp("Walnut Desk XL"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Walnut Desk XL", p.Name)
		assert.Equal(t, "standing desk", p.Description) // untouched

		require.Len(t, outbox.inserted, 1)
		assert.Equal(t, event.TypeProductUpdated, outbox.inserted[0].EventType)

		var payload event.ProductUpdated
		require.NoError(t, json.Unmarshal(outbox.inserted[0].Payload, &payload))
		require.NotNil(t, payload.Name)
		assert.Equal(t, "Walnut Desk XL", *payload.Name)
		assert.Nil(t, payload.Description)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no fields set is a no-op without outbox row", func(t *testing.T) {
		products := &fakeProducts{product: existingProduct()}
		outbox := &fakeOutbox{}
		svc, mock := newServiceForTest(t, products, outbox)

		mock.ExpectBegin()
		mock.ExpectRollback()

		p, err := svc.Update(context.Background(), productID, UpdateParams{})
		require.NoError(t, err)
		assert.Equal(t, "Walnut Desk", p.Name)

		assert.Empty(t, products.updated)
		assert.Empty(t, outbox.inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		svc, mock := newServiceForTest(t, &fakeProducts{}, &fakeOutbox{})

		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Update(context.Background(), productID, UpdateParams{Name: strp("x")})
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestUpdatePrice(t *testing.T) {
	t.Run("change writes price-updated event with old and new", func(t *testing.T) {
		products := &fakeProducts{product: existingProduct()}
		outbox := &fakeOutbox{}
		svc, mock := newServiceForTest(t, products, outbox)
		svc.now = func() time.Time { return testTime }

		mock.ExpectBegin()
		mock.ExpectCommit()

		p, err := svc.UpdatePrice(context.Background(), productID, 45900, "EUR")
		require.NoError(t, err)
		assert.Equal(t, int64(45900), p.PriceCents)
		assert.Equal(t, testTime, *p.PriceUpdatedAt)

		require.Len(t, outbox.inserted, 1)
		var payload event.ProductPriceUpdated
		require.NoError(t, json.Unmarshal(outbox.inserted[0].Payload, &payload))
		assert.Equal(t, int64(49900), payload.OldPriceCents)
		assert.Equal(t, int64(45900), payload.NewPriceCents)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("equal price is a no-op", func(t *testing.T) {
		products := &fakeProducts{product: existingProduct()}
		outbox := &fakeOutbox{}
		svc, mock := newServiceForTest(t, products, outbox)

		mock.ExpectBegin()
		mock.ExpectRollback()

		p, err := svc.UpdatePrice(context.Background(), productID, 49900, "EUR")
		require.NoError(t, err)
		assert.Equal(t, int64(49900), p.PriceCents)

		assert.Empty(t, products.priceUpdates)
		assert.Empty(t, outbox.inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("currency mismatch", func(t *testing.T) {
		products := &fakeProducts{product: existingProduct()}
		svc, mock := newServiceForTest(t, products, &fakeOutbox{})

		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.UpdatePrice(context.Background(), productID, 45900, "USD")
		assert.True(t, errors.Is(err, ErrCurrencyMismatch))
		assert.Empty(t, products.priceUpdates)
	})
}

func TestDelete(t *testing.T) {
	t.Run("queues deleted event with the aggregate removal", func(t *testing.T) {
		products := &fakeProducts{product: existingProduct()}
		outbox := &fakeOutbox{}
		svc, mock := newServiceForTest(t, products, outbox)
		svc.now = func() time.Time { return testTime }

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := svc.Delete(context.Background(), productID)
		require.NoError(t, err)

		assert.Equal(t, []string{productID}, products.deleted)
		require.Len(t, outbox.inserted, 1)
		assert.Equal(t, event.TypeProductDeleted, outbox.inserted[0].EventType)
		assert.Equal(t, productID, outbox.inserted[0].AggregateID)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		svc, mock := newServiceForTest(t, &fakeProducts{}, &fakeOutbox{})

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := svc.Delete(context.Background(), productID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
