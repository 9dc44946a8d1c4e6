package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/CryptoStream-Network/stream_layer/internal/journal"
)

func TestRecordExecutionInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)

	started := time.Now().UTC().Add(-time.Second)
	finished := time.Now().UTC()
	mock.ExpectExec("INSERT INTO task_executions").
		WithArgs(sqlmock.AnyArg(), "health-monitor", started, finished, true, "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.RecordExecution(context.Background(), journal.Record{
		TaskID:     "health-monitor",
		StartedAt:  started,
		FinishedAt: finished,
		Success:    true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID, "record id should be assigned")
	require.Equal(t, finished.Sub(started), rec.Duration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExecutionsFiltersByTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)

	started := time.Now().UTC().Add(-2 * time.Second)
	finished := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "task_id", "started_at", "finished_at", "success", "error"}).
		AddRow("a2f1c9e4-1111-4222-8333-444455556666", "gas-monitor", started, finished, false, "endpoint unreachable")

	mock.ExpectQuery("SELECT id, task_id, started_at, finished_at, success, error").
		WithArgs("gas-monitor").
		WillReturnRows(rows)

	recs, err := store.ListExecutions(context.Background(), "gas-monitor", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "gas-monitor", recs[0].TaskID)
	require.False(t, recs[0].Success)
	require.Equal(t, "endpoint unreachable", recs[0].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastRunEmptyJournal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)

	mock.ExpectQuery("SELECT id, task_id, started_at, finished_at, success, error").
		WithArgs("content-pinning").
		WillReturnRows(sqlmock.NewRows([]string{"id", "task_id", "started_at", "finished_at", "success", "error"}))

	_, found, err := store.LastRun(context.Background(), "content-pinning")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}
