package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolffsoft/catalog-service/internal/model"
)

func TestInboxInsert(t *testing.T) {
	rec := model.InboxRecord{
		ID:          "01HXINBOX00000000000000001",
		RequestID:   "req-2026-03-01-000123",
		ProductID:   "01HXPRODUCT000000000000000",
		EffectiveAt: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		ReceivedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:      "erp-feed",
	}

	t.Run("success", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewInboxRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO price_update_inbox`).
			WithArgs(rec.ID, rec.RequestID, rec.ProductID, rec.EffectiveAt, rec.ReceivedAt, rec.Source).
			WillReturnResult(sqlmock.NewResult(0, 1))

		tx, err := dbx.Beginx()
		require.NoError(t, err)

		err = repo.Insert(context.Background(), tx, rec)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate request id maps to ErrDuplicateRequest", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewInboxRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO price_update_inbox`).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		tx, err := dbx.Beginx()
		require.NoError(t, err)

		err = repo.Insert(context.Background(), tx, rec)
		assert.True(t, errors.Is(err, ErrDuplicateRequest))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other mysql errors pass through", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewInboxRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO price_update_inbox`).
			WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})

		tx, err := dbx.Beginx()
		require.NoError(t, err)

		err = repo.Insert(context.Background(), tx, rec)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrDuplicateRequest))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
