package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/paymentflow/core/domain/event"
)

func newMockRepo(t *testing.T) (*OutboxRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewOutboxRepository(sqlxDB), mock
}

func TestOutboxRepositoryAppend(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO transaction_events").WillReturnResult(sqlmock.NewResult(1, 1))

	ev := event.New("evt-1", "saga-1", 1, event.TypePaymentInitiated, map[string]interface{}{"amount": 5000},
		time.Now().UTC(), "saga-1", "", "tenant-1", "bu-1")

	err := repo.Append(context.Background(), ev)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepositoryListUnpublished(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"event_id", "saga_id", "seq", "type", "payload", "occurred_at", "correlation_id",
		"causation_id", "tenant_id", "business_unit_id", "status", "publish_attempt",
	}).AddRow("evt-1", "saga-1", int64(1), "PaymentInitiated", []byte(`{}`), now, "saga-1", "", "tenant-1", "bu-1", "UNPUBLISHED", 0)

	mock.ExpectQuery("SELECT (.|\n)*FROM transaction_events").WillReturnRows(rows)

	out, err := repo.ListUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "saga-1", out[0].SagaID)
	require.Equal(t, event.StatusUnpublished, out[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepositoryMarkPublished(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE transaction_events SET status = 'PUBLISHED'").
		WithArgs("evt-1").WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkPublished(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepositoryMarkAttemptPoisons(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE transaction_events SET publish_attempt").
		WithArgs("evt-1", 3).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkAttempt(context.Background(), "evt-1", 3)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
