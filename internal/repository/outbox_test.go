package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolffsoft/catalog-service/internal/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

func TestOutboxInsertOwnTx(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := model.OutboxEvent{
		ID:            "01HXEVENT00000000000000001",
		AggregateID:   "01HXPRODUCT000000000000000",
		EventType:     "product.created.v1",
		Payload:       []byte(`{"product_id":"p1"}`),
		CreatedAt:     now,
		NextAttemptAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO outbox_event`).
		WithArgs(ev.ID, ev.AggregateID, ev.EventType, ev.Payload, ev.CreatedAt, ev.NextAttemptAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Insert(context.Background(), nil, ev)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxFindReadyIDs(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id"}).AddRow("ev-1").AddRow("ev-2")

	mock.ExpectQuery(`SELECT id\s+FROM outbox_event\s+WHERE status IN \('NEW', 'FAILED'\)`).
		WithArgs(now, 50).
		WillReturnRows(rows)

	ids, err := repo.FindReadyIDs(context.Background(), now, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-1", "ev-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxClaim(t *testing.T) {
	t.Run("empty ids is a no-op", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboxRepository(dbx)

		n, err := repo.Claim(context.Background(), nil, "worker-1", time.Now())
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("re-checks the claimable predicate", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboxRepository(dbx)

		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		// Three ids selected, but one was grabbed by a concurrent instance:
		// only two rows transition.
		mock.ExpectExec(`UPDATE outbox_event\s+SET status = 'IN_PROGRESS'.+status IN \('NEW', 'FAILED'\)`).
			WithArgs("worker-1", now, "ev-1", "ev-2", "ev-3", now).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.Claim(context.Background(), []string{"ev-1", "ev-2", "ev-3"}, "worker-1", now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxMarkPublished(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	publishedAt := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)

	mock.ExpectExec(`UPDATE outbox_event\s+SET status = 'PUBLISHED'`).
		WithArgs(publishedAt, 3, "ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkPublished(context.Background(), "ev-1", 3, publishedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMarkFailedTruncatesError(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	next := time.Date(2026, 3, 1, 12, 0, 4, 0, time.UTC)
	longErr := strings.Repeat("x", maxLastErrorLen+500)

	mock.ExpectExec(`UPDATE outbox_event\s+SET status = 'FAILED'`).
		WithArgs(1, next, strings.Repeat("x", maxLastErrorLen), "ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), "ev-1", 1, next, longErr)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRecoverStaleLocks(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Minute)

	mock.ExpectExec(`UPDATE outbox_event\s+SET status = 'FAILED'.+WHERE status = 'IN_PROGRESS'`).
		WithArgs(now, staleLockError, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.RecoverStaleLocks(context.Background(), cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMoveToDeadLetter(t *testing.T) {
	t.Run("copy and delete in one transaction", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboxRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO outbox_dead_letters`).
			WithArgs("unknown event type: \"bogus.v1\"", "ev-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM outbox_event WHERE id = \?`).
			WithArgs("ev-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.MoveToDeadLetter(context.Background(), model.OutboxEvent{ID: "ev-1"}, `unknown event type: "bogus.v1"`)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the copy fails", func(t *testing.T) {
		dbx, mock := newMockDB(t)
		repo := NewOutboxRepository(dbx)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO outbox_dead_letters`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := repo.MoveToDeadLetter(context.Background(), model.OutboxEvent{ID: "ev-1"}, "reason")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
