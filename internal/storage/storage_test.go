package storage

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonica-labs/rhive/internal/observability"
)

var startedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleEntry(id string) observability.OperationEntry {
	return observability.OperationEntry{
		OperationID: id,
		Kind:        observability.KindWrite,
		Table:       "sales",
		Mode:        "append",
		Action:      "proceed",
		Strategy:    "inline",
		Rows:        250,
		Statements:  4,
		Duration:    1500 * time.Millisecond,
		Outcome:     observability.OutcomeSuccess,
		StartedAt:   startedAt,
	}
}

func TestPostgresJournalRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := sampleEntry("op-1")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO operation_journal")).
		WithArgs("op-1", "write", "sales", "append", "proceed", "inline",
			int64(250), 4, int64(1500), "success", nil, startedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewPostgresJournal(db).Record(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournalRejectsInvalidEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewPostgresJournal(db).Record(context.Background(), observability.OperationEntry{})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournalRecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO operation_journal").WillReturnError(fmt.Errorf("connection reset"))
	err = NewPostgresJournal(db).Record(context.Background(), sampleEntry("op-1"))
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresJournalList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	columns := []string{"operation_id", "kind", "table_name", "mode", "action", "strategy",
		"rows_written", "statements", "duration_ms", "outcome", "error_message", "started_at"}
	rows := sqlmock.NewRows(columns).
		AddRow("op-2", "write", "sales", "overwrite", "fail", "inline", int64(0), int64(1), int64(3), "error", "table already exists: sales", startedAt).
		AddRow("op-1", "read", nil, nil, nil, nil, int64(10), int64(1), int64(20), "success", nil, startedAt)
	mock.ExpectQuery("SELECT operation_id").WithArgs(DefaultListLimit).WillReturnRows(rows)

	entries, err := NewPostgresJournal(db).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "op-2", entries[0].OperationID)
	assert.Equal(t, "table already exists: sales", entries[0].Error)
	assert.Equal(t, 3*time.Millisecond, entries[0].Duration)
	assert.Equal(t, "", entries[1].Table)
	assert.Equal(t, int64(10), entries[1].Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournalListEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT operation_id").WithArgs(5).WillReturnRows(sqlmock.NewRows([]string{"operation_id"}))
	entries, err := NewPostgresJournal(db).List(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestPostgresJournalConnectivity(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	require.NoError(t, NewPostgresJournal(db).CheckConnectivity(context.Background()))

	mock.ExpectPing().WillReturnError(fmt.Errorf("dial tcp: connection refused"))
	assert.ErrorContains(t, NewPostgresJournal(db).CheckConnectivity(context.Background()), "unreachable")
}

func TestMigrationRunnerAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS operation_journal").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("000001", anyTime{}).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrationRunner(db).Run(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationRunnerSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("000001"))

	require.NoError(t, NewMigrationRunner(db).Run(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationRunnerRollsBackFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS operation_journal").WillReturnError(fmt.Errorf("permission denied"))
	mock.ExpectRollback()

	err = NewMigrationRunner(db).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000001_create_operation_journal")
	require.NoError(t, mock.ExpectationsWereMet())
}

type anyTime struct{}

func (anyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

func TestMemoryJournal(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	for i := 1; i <= 3; i++ {
		require.NoError(t, j.Record(ctx, sampleEntry(fmt.Sprintf("op-%d", i))))
	}
	assert.Error(t, j.Record(ctx, observability.OperationEntry{}))

	entries, err = j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "op-3", entries[0].OperationID)
	assert.Equal(t, "op-2", entries[1].OperationID)

	j.SetUnavailable(true)
	assert.Error(t, j.CheckConnectivity(ctx))
	assert.Error(t, j.Record(ctx, sampleEntry("op-4")))
	_, err = j.List(ctx, 1)
	assert.Error(t, err)

	j.SetUnavailable(false)
	require.NoError(t, j.CheckConnectivity(ctx))
}

func TestJournalAsRecorder(t *testing.T) {
	j := NewMemoryJournal()
	z := observability.NewZapRecorder(nil)
	rec := observability.MultiRecorder{z, j}

	require.NoError(t, rec.Record(context.Background(), sampleEntry("op-1")))
	entries, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Len(t, z.Entries(), 1)
}
