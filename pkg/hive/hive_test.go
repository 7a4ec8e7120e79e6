package hive

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	arrowmem "github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/adapters/memory"
	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/frame"
	"github.com/canonica-labs/rhive/internal/observability"
	"github.com/canonica-labs/rhive/internal/planner"
)

func shared(c adapters.Client) adapters.Factory {
	return func(context.Context, adapters.ConnectionOptions) (adapters.Client, error) {
		return c, nil
	}
}

var fastRetry = adapters.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func connectedWriter(t *testing.T, wh *memory.Client, opts ...Option) *Writer {
	t.Helper()
	w := NewWriter(DefaultConfig(), shared(wh), append([]Option{WithRetryConfig(fastRetry)}, opts...)...)
	require.NoError(t, w.Connect(context.Background()))
	return w
}

func connectedReader(t *testing.T, wh *memory.Client) *Reader {
	t.Helper()
	r := NewReader(DefaultConfig(), shared(wh), WithRetryConfig(fastRetry))
	require.NoError(t, r.Connect(context.Background()))
	return r
}

func people(t *testing.T, rows int) arrow.Record {
	t.Helper()
	s := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(arrowmem.NewGoAllocator(), s)
	defer b.Release()
	for i := 0; i < rows; i++ {
		b.Field(0).(*array.Int64Builder).Append(int64(i))
		b.Field(1).(*array.StringBuilder).Append(fmt.Sprintf("n%d", i))
	}
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func rowCount(t *testing.T, wh *memory.Client, table string) int {
	t.Helper()
	tbl, ok := wh.Table(table)
	require.True(t, ok, "table %s missing", table)
	return len(tbl.Rows)
}

func TestWriteErrorIfExistsCreatesThenInserts(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)

	res, err := w.Write(ctx, people(t, 5), "sales", DefaultWriteOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"SHOW TABLES LIKE 'sales'"}, wh.Queries())
	assert.Equal(t, []string{
		"CREATE TABLE sales (id BIGINT, name STRING) STORED AS PARQUET",
		"INSERT INTO sales (id, name) VALUES (0, 'n0'), (1, 'n1'), (2, 'n2'), (3, 'n3'), (4, 'n4')",
	}, wh.Execs())
	assert.True(t, res.Created)
	assert.False(t, res.Dropped)
	assert.Equal(t, planner.Proceed, res.Action)
	assert.Equal(t, int64(5), res.Rows)
	assert.NotEmpty(t, res.OperationID)
	assert.Len(t, res.Statements, 3)

	execs := len(wh.Execs())
	_, err = w.Write(ctx, people(t, 5), "sales", DefaultWriteOptions())
	require.Error(t, err)
	assert.True(t, errors.IsTableAlreadyExists(err))
	assert.Len(t, wh.Execs(), execs, "a failed error_if_exists write issues no DDL or DML")
	assert.Equal(t, 5, rowCount(t, wh, "sales"))
}

func TestWriteIgnoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)
	opts := WriteOptions{Mode: planner.Ignore, CreateTable: true}

	first, err := w.Write(ctx, people(t, 3), "t", opts)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	execs := len(wh.Execs())
	second, err := w.Write(ctx, people(t, 3), "t", opts)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, planner.Skip, second.Action)
	assert.Len(t, wh.Execs(), execs)
	assert.Equal(t, 3, rowCount(t, wh, "t"))
}

func TestWriteOverwriteDropsAndRecreates(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)
	opts := WriteOptions{Mode: planner.Overwrite, CreateTable: true}

	_, err := w.Write(ctx, people(t, 4), "t", opts)
	require.NoError(t, err)
	wh.ResetLog()

	res, err := w.Write(ctx, people(t, 2), "t", opts)
	require.NoError(t, err)
	assert.True(t, res.Dropped)
	assert.True(t, res.Created)
	assert.Equal(t, planner.DropThenCreate, res.Action)

	execs := wh.Execs()
	require.Len(t, execs, 3)
	assert.Equal(t, "DROP TABLE t", execs[0])
	assert.Equal(t, "CREATE TABLE t (id BIGINT, name STRING) STORED AS PARQUET", execs[1])
	assert.Equal(t, 2, rowCount(t, wh, "t"))
}

func TestWriteAppendNeverRecreates(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)
	opts := WriteOptions{Mode: planner.Append, CreateTable: true}

	_, err := w.Write(ctx, people(t, 2), "t", opts)
	require.NoError(t, err)
	res, err := w.Write(ctx, people(t, 2), "t", opts)
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, 4, rowCount(t, wh, "t"))
}

func TestWriteAppendWithoutCreateOnMissingTableFailsAtInsert(t *testing.T) {
	wh := memory.New()
	w := connectedWriter(t, wh)

	_, err := w.Write(context.Background(), people(t, 2), "missing", WriteOptions{Mode: planner.Append})
	require.Error(t, err)
	stage, ok := errors.IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageInsert, stage)
	assert.ErrorIs(t, err, memory.ErrSemantic)
}

func TestWritePartitionColumnsGoLast(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)

	s := arrow.NewSchema([]arrow.Field{
		{Name: "region", Type: arrow.BinaryTypes.String},
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "amount", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	b := array.NewRecordBuilder(arrowmem.NewGoAllocator(), s)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append("eu")
	b.Field(1).(*array.Int32Builder).Append(7)
	b.Field(2).(*array.Float64Builder).Append(1.5)
	rec := b.NewRecord()
	defer rec.Release()

	_, err := w.Write(ctx, rec, "analytics.orders", WriteOptions{PartitionCols: []string{"region"}, CreateTable: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"SHOW TABLES IN analytics LIKE 'orders'"}, wh.Queries())
	assert.Equal(t, []string{
		"CREATE TABLE analytics.orders (id INT, amount DOUBLE) PARTITIONED BY (region STRING) STORED AS PARQUET",
		"INSERT INTO analytics.orders (id, amount, region) VALUES (7, 1.5, 'eu')",
	}, wh.Execs())
}

func TestWriteValidationHappensBeforeIO(t *testing.T) {
	listType := arrow.ListOf(arrow.BinaryTypes.String)
	s := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "tags", Type: listType},
	}, nil)
	b := array.NewRecordBuilder(arrowmem.NewGoAllocator(), s)
	defer b.Release()
	listRec := b.NewRecord()
	defer listRec.Release()

	tests := []struct {
		name  string
		rec   arrow.Record
		table string
		opts  WriteOptions
		check func(error) bool
	}{
		{"unsupported type", listRec, "t", DefaultWriteOptions(), errors.IsUnsupportedType},
		{"bad table name", people(t, 1), "bad-name", DefaultWriteOptions(), isInvalidArgument},
		{"nil table", nil, "t", DefaultWriteOptions(), isInvalidArgument},
		{"unknown partition", people(t, 1), "t", WriteOptions{PartitionCols: []string{"nope"}}, isInvalidArgument},
		{"all partition", people(t, 1), "t", WriteOptions{PartitionCols: []string{"id", "name"}}, isInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := memory.New()
			w := connectedWriter(t, wh)

			_, err := w.Write(context.Background(), tt.rec, tt.table, tt.opts)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Empty(t, wh.Statements())
		})
	}
}

func isInvalidArgument(err error) bool {
	var target *errors.ErrInvalidArgument
	return stderrors.As(err, &target)
}

func TestWriteStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)
	opts := WriteOptions{Mode: planner.Overwrite, CreateTable: true}

	_, err := w.Write(ctx, people(t, 2), "t", opts)
	require.NoError(t, err)
	wh.ResetLog()

	cause := stderrors.New("permission denied")
	wh.FailOnce("DROP", cause)
	res, err := w.Write(ctx, people(t, 2), "t", opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	stage, _ := errors.IsExecutionFailure(err)
	assert.Equal(t, errors.StageDrop, stage)
	assert.Equal(t, []string{"DROP TABLE t"}, wh.Execs())
	assert.False(t, res.Dropped)
}

func TestExistenceCheckFailure(t *testing.T) {
	wh := memory.New()
	w := connectedWriter(t, wh)
	wh.FailOnce("SHOW", io.ErrUnexpectedEOF)

	_, err := w.Write(context.Background(), people(t, 1), "t", DefaultWriteOptions())
	stage, ok := errors.IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageExistsCheck, stage)
	assert.Empty(t, wh.Execs())
}

func TestOperationsRequireConnection(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := NewWriter(DefaultConfig(), shared(wh))
	r := NewReader(DefaultConfig(), shared(wh))

	assert.Equal(t, Disconnected, w.State())
	_, err := w.Write(ctx, people(t, 1), "t", DefaultWriteOptions())
	assert.True(t, errors.IsNotConnected(err))
	assert.True(t, errors.IsNotConnected(w.CreateTable(ctx, people(t, 1), "t", nil)))
	assert.True(t, errors.IsNotConnected(w.DropTable(ctx, "t", true)))

	_, err = r.Query(ctx, "SELECT 1")
	assert.True(t, errors.IsNotConnected(err))
	_, err = r.Benchmark(ctx, "SELECT 1", 1)
	assert.True(t, errors.IsNotConnected(err))

	assert.Empty(t, wh.Statements())
}

func TestConnectAndDisconnect(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := NewWriter(DefaultConfig(), shared(wh), WithRetryConfig(fastRetry))

	require.NoError(t, w.Disconnect())
	require.NoError(t, w.Connect(ctx))
	require.NoError(t, w.Connect(ctx))
	assert.True(t, w.IsConnected())
	assert.Equal(t, 1, wh.Pings())

	require.NoError(t, w.Disconnect())
	require.NoError(t, w.Disconnect())
	assert.False(t, w.IsConnected())
	assert.Equal(t, DefaultConfig(), w.Config())
}

func TestConnectRetriesTransientFailures(t *testing.T) {
	wh := memory.New()
	wh.FailPings(2, io.EOF)
	w := NewWriter(DefaultConfig(), shared(wh), WithRetryConfig(fastRetry))

	require.NoError(t, w.Connect(context.Background()))
	assert.Equal(t, 3, wh.Pings())
}

func TestConnectGivesUp(t *testing.T) {
	wh := memory.New()
	wh.FailPings(5, io.EOF)
	w := NewWriter(DefaultConfig(), shared(wh), WithRetryConfig(fastRetry))

	err := w.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConnectionFailed(err))
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, w.IsConnected())
	assert.Equal(t, 3, wh.Pings())
}

func TestConnectDoesNotRetryPermanentFailures(t *testing.T) {
	wh := memory.New()
	wh.FailPings(5, stderrors.New("authentication failed"))
	w := NewWriter(DefaultConfig(), shared(wh), WithRetryConfig(fastRetry))

	require.Error(t, w.Connect(context.Background()))
	assert.Equal(t, 1, wh.Pings())
}

func TestConnectValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	w := NewWriter(cfg, shared(memory.New()))
	assert.True(t, isInvalidArgument(w.Connect(context.Background())))
}

func TestCreateAndDropTable(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)

	require.NoError(t, w.CreateTable(ctx, people(t, 0), "t", []string{"name"}))
	assert.Equal(t, []string{"CREATE TABLE t (id BIGINT) PARTITIONED BY (name STRING) STORED AS PARQUET"}, wh.Execs())
	assert.Equal(t, 0, rowCount(t, wh, "t"))

	require.NoError(t, w.DropTable(ctx, "t", false))
	require.NoError(t, w.DropTable(ctx, "t", true))
	err := w.DropTable(ctx, "t", false)
	stage, ok := errors.IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageDrop, stage)
}

func TestReaderHelpers(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	w := connectedWriter(t, wh)
	_, err := w.Write(ctx, people(t, 15), "sales", DefaultWriteOptions())
	require.NoError(t, err)
	wh.ResetLog()

	r := connectedReader(t, wh)

	rec, err := r.Sample(ctx, "sales", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.NumRows())
	rec.Release()
	assert.Equal(t, "SELECT * FROM sales LIMIT 10", wh.Queries()[0])

	exists, err := r.TableExists(ctx, "sales")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = r.TableExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)

	rec, err = r.ShowTables(ctx)
	require.NoError(t, err)
	_, rows := frame.Strings(rec)
	rec.Release()
	assert.Equal(t, [][]string{{"sales"}}, rows)

	rec, err = r.Describe(ctx, "sales")
	require.NoError(t, err)
	_, rows = frame.Strings(rec)
	rec.Release()
	assert.Equal(t, [][]string{{"id", "bigint", ""}, {"name", "string", ""}}, rows)

	records, err := r.Records(ctx, "SELECT COUNT(*) FROM sales")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"_c0": int64(15)}}, records)

	_, err = r.Query(ctx, "SELECT * FROM nope")
	stage, ok := errors.IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageQuery, stage)
}

func TestBenchmark(t *testing.T) {
	wh := memory.New()
	r := connectedReader(t, wh)
	wh.ResetLog()

	res, err := r.Benchmark(context.Background(), "SELECT 1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBenchmarkIterations, res.Iterations)
	assert.Len(t, wh.Queries(), DefaultBenchmarkIterations)
	assert.Equal(t, int64(1), res.Rows)
	assert.LessOrEqual(t, res.Min, res.Max)
	assert.Equal(t, res.Total/time.Duration(res.Iterations), res.Average)
}

func TestWithWriterDisconnectsOnEveryPath(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()

	wh := memory.New()
	var seen *Writer
	err := WithWriter(ctx, cfg, shared(wh), func(w *Writer) error {
		seen = w
		assert.True(t, w.IsConnected())
		_, err := w.Write(ctx, people(t, 1), "t", DefaultWriteOptions())
		return err
	}, WithRetryConfig(fastRetry))
	require.NoError(t, err)
	assert.False(t, seen.IsConnected())

	sentinel := stderrors.New("caller failed")
	err = WithWriter(ctx, cfg, shared(memory.New()), func(w *Writer) error {
		seen = w
		return sentinel
	}, WithRetryConfig(fastRetry))
	assert.Same(t, sentinel, err)
	assert.False(t, seen.IsConnected())
}

type closeFails struct {
	*memory.Client
	err error
}

func (c closeFails) Close() error {
	return c.err
}

func TestWithReaderDisconnectFailure(t *testing.T) {
	ctx := context.Background()
	closeErr := stderrors.New("close failed")
	client := closeFails{Client: memory.New(), err: closeErr}

	err := WithReader(ctx, DefaultConfig(), shared(client), func(r *Reader) error {
		return nil
	}, WithRetryConfig(fastRetry))
	assert.Same(t, closeErr, err)

	sentinel := stderrors.New("query failed")
	err = WithReader(ctx, DefaultConfig(), shared(client), func(r *Reader) error {
		return sentinel
	}, WithRetryConfig(fastRetry))
	assert.Same(t, sentinel, err)
}

func TestWithReaderConnectFailureSkipsFn(t *testing.T) {
	wh := memory.New()
	wh.FailPings(3, io.EOF)
	called := false

	err := WithReader(context.Background(), DefaultConfig(), shared(wh), func(*Reader) error {
		called = true
		return nil
	}, WithRetryConfig(fastRetry))
	assert.True(t, errors.IsConnectionFailed(err))
	assert.False(t, called)
}

func TestOperationsAreRecorded(t *testing.T) {
	ctx := context.Background()
	wh := memory.New()
	rec := observability.NewZapRecorder(nil)
	w := connectedWriter(t, wh, WithRecorder(rec))
	opts := WriteOptions{Mode: planner.Ignore, CreateTable: true}

	_, err := w.Write(ctx, people(t, 2), "t", opts)
	require.NoError(t, err)
	_, err = w.Write(ctx, people(t, 2), "t", opts)
	require.NoError(t, err)
	_, err = w.Write(ctx, people(t, 2), "t", DefaultWriteOptions())
	require.Error(t, err)

	entries := rec.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, observability.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, int64(2), entries[0].Rows)
	assert.Equal(t, "ignore", entries[0].Mode)
	assert.Equal(t, "inline", entries[0].Strategy)
	assert.Equal(t, observability.OutcomeSkipped, entries[1].Outcome)
	assert.Equal(t, "skip", entries[1].Action)
	assert.Equal(t, observability.OutcomeError, entries[2].Outcome)
	assert.Equal(t, "fail", entries[2].Action)

	summary := rec.Summary()
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, 1, summary.ErrorCount)
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 10000, cfg.Port)
	assert.Equal(t, "default", cfg.Username)
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, "NONE", cfg.Auth)
	require.NoError(t, cfg.Validate())

	cfg.Password = "hunter2"
	assert.NotContains(t, cfg.String(), "hunter2")
	assert.Contains(t, cfg.String(), "localhost:10000")

	bad := cfg
	bad.Auth = "OAUTH"
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.Host = " "
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.Port = 70000
	assert.Error(t, bad.Validate())

	opts := cfg.ConnectionOptions()
	assert.Equal(t, "localhost:10000", opts.Address())
	assert.Equal(t, "hunter2", opts.Password)
}
