package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"

	"github.com/canonica-labs/rhive/internal/errors"
)

// recordingExecutor records statements and fails on the call numbered failOn (1-based).
type recordingExecutor struct {
	statements []string
	failOn     int
	onExec     func(stmt string)
}

func (e *recordingExecutor) Exec(_ context.Context, stmt string) error {
	e.statements = append(e.statements, stmt)
	if e.onExec != nil {
		e.onExec(stmt)
	}
	if e.failOn > 0 && len(e.statements) == e.failOn {
		return stderrors.New("FAILED: SemanticException")
	}
	return nil
}

func idNameRecord(t *testing.T, rows int) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	ids := b.Field(0).(*array.Int64Builder)
	names := b.Field(1).(*array.StringBuilder)
	for i := 0; i < rows; i++ {
		ids.Append(int64(i))
		if i%2 == 1 {
			names.AppendNull()
		} else {
			names.Append(fmt.Sprintf("n%d", i))
		}
	}
	rec := b.NewRecord()
	t.Cleanup(rec.Release)
	return rec
}

func insertedRows(t *testing.T, stmt string) int {
	t.Helper()
	parsed, err := sqlparser.Parse(stmt)
	require.NoError(t, err)
	insert, ok := parsed.(*sqlparser.Insert)
	require.True(t, ok)
	values, ok := insert.Rows.(sqlparser.Values)
	require.True(t, ok)
	return len(values)
}

func TestInlineBatchesInRowOrder(t *testing.T) {
	exec := &recordingExecutor{}
	loader := NewLoader(Inline, Options{BatchSize: 100})

	res, err := loader.Load(context.Background(), exec, idNameRecord(t, 250), "t", nil)
	require.NoError(t, err)

	require.Len(t, exec.statements, 3)
	assert.Equal(t, 100, insertedRows(t, exec.statements[0]))
	assert.Equal(t, 100, insertedRows(t, exec.statements[1]))
	assert.Equal(t, 50, insertedRows(t, exec.statements[2]))

	assert.True(t, strings.HasPrefix(exec.statements[0], "INSERT INTO t (id, name) VALUES (0, 'n0'), (1, NULL)"))
	assert.Contains(t, exec.statements[1], "(100, 'n100')")
	assert.True(t, strings.HasSuffix(exec.statements[2], "(249, NULL)"))

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, int64(250), res.Rows)
	assert.Equal(t, exec.statements, res.Statements)
	assert.Empty(t, res.Warnings)
}

func TestInlineAbortsOnFirstFailure(t *testing.T) {
	exec := &recordingExecutor{failOn: 2}
	loader := NewLoader(Inline, DefaultOptions())

	res, err := loader.Load(context.Background(), exec, idNameRecord(t, 250), "t", nil)
	require.Error(t, err)

	stage, ok := errors.IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageInsert, stage)
	assert.Len(t, exec.statements, 2)
	assert.Equal(t, 1, res.Batches)
}

func TestInlineWarnsOnLargeWrites(t *testing.T) {
	exec := &recordingExecutor{}
	loader := NewLoader(Inline, DefaultOptions())

	res, err := loader.Load(context.Background(), exec, idNameRecord(t, 1001), "t", nil)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "1001 rows")
	assert.Len(t, exec.statements, 11)
}

func TestZeroRowsIssueNoStatement(t *testing.T) {
	for _, s := range []Strategy{Inline, LocalFile, ColumnarFile} {
		exec := &recordingExecutor{}
		loader := NewLoader(s, Options{Fs: afero.NewMemMapFs()})

		res, err := loader.Load(context.Background(), exec, idNameRecord(t, 0), "t", nil)
		require.NoError(t, err, s.String())
		assert.Empty(t, exec.statements, s.String())
		assert.Zero(t, res.Rows)
	}
}

func TestPartitionColumnsGoLast(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Int64},
		{Name: "p", Type: arrow.BinaryTypes.String},
		{Name: "b", Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).Append(1)
	b.Field(1).(*array.StringBuilder).Append("eu")
	b.Field(2).(*array.StringBuilder).Append("O'Brien")
	rec := b.NewRecord()
	defer rec.Release()

	exec := &recordingExecutor{}
	_, err := NewLoader(Inline, DefaultOptions()).Load(context.Background(), exec, rec, "t", []string{"p"})
	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT INTO t (a, b, p) VALUES (1, 'O''Brien', 'eu')"}, exec.statements)
}

func TestLocalFileStagesLoadsAndCleansUp(t *testing.T) {
	fs := afero.NewMemMapFs()
	var staged string
	exec := &recordingExecutor{onExec: func(stmt string) {
		path := strings.TrimSuffix(strings.TrimPrefix(stmt, "LOAD DATA LOCAL INPATH '"), "' INTO TABLE t")
		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		staged = string(data)
	}}

	loader := NewLoader(LocalFile, Options{Fs: fs, StagingDir: "/staging"})
	res, err := loader.Load(context.Background(), exec, idNameRecord(t, 3), "t", nil)
	require.NoError(t, err)

	require.Len(t, exec.statements, 1)
	assert.Equal(t, fmt.Sprintf("LOAD DATA LOCAL INPATH '%s' INTO TABLE t", res.StagedFile), exec.statements[0])
	assert.Equal(t, "0,n0\n1,\\N\n2,n2\n", staged)
	assert.Equal(t, "/staging", filepath.Dir(res.StagedFile))
	assert.True(t, strings.HasPrefix(filepath.Base(res.StagedFile), "t_"))
	assert.True(t, strings.HasSuffix(res.StagedFile, ".csv"))

	exists, err := afero.Exists(fs, res.StagedFile)
	require.NoError(t, err)
	assert.False(t, exists, "staged file must be removed after the load")
}

func TestLocalFileRendersTimestamps(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "ts", Type: &arrow.TimestampType{Unit: arrow.Second}},
		{Name: "d", Type: arrow.FixedWidthTypes.Date32},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(when.Unix()))
	b.Field(1).(*array.Date32Builder).Append(arrow.Date32FromTime(when))
	rec := b.NewRecord()
	defer rec.Release()

	fs := afero.NewMemMapFs()
	var staged string
	exec := &recordingExecutor{onExec: func(stmt string) {
		matches, _ := afero.Glob(fs, "/staging/*.csv")
		require.Len(t, matches, 1)
		data, _ := afero.ReadFile(fs, matches[0])
		staged = string(data)
	}}

	_, err := NewLoader(LocalFile, Options{Fs: fs, StagingDir: "/staging", Delimiter: '\t'}).
		Load(context.Background(), exec, rec, "events", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02 03:04:05\t2024-01-02\n", staged)
}

func TestLocalFileCleansUpAfterFailedLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	exec := &recordingExecutor{failOn: 1}

	res, err := NewLoader(LocalFile, Options{Fs: fs, StagingDir: "/staging"}).
		Load(context.Background(), exec, idNameRecord(t, 3), "db.t", nil)
	require.Error(t, err)

	stage, ok := errors.IsExecutionFailure(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageLoad, stage)
	assert.True(t, strings.HasPrefix(filepath.Base(res.StagedFile), "db_t_"))

	exists, _ := afero.Exists(fs, res.StagedFile)
	assert.False(t, exists)
	assert.Empty(t, res.Warnings)
}

func TestStagingCreateFailureIsStagingIO(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	exec := &recordingExecutor{}

	_, err := NewLoader(LocalFile, Options{Fs: fs, StagingDir: "/staging"}).
		Load(context.Background(), exec, idNameRecord(t, 3), "t", nil)
	require.Error(t, err)

	var target *errors.ErrStagingIO
	assert.ErrorAs(t, err, &target)
	assert.Empty(t, exec.statements)
}

func TestColumnarFileWritesParquet(t *testing.T) {
	fs := afero.NewMemMapFs()
	var rows int64
	exec := &recordingExecutor{onExec: func(stmt string) {
		matches, err := afero.Glob(fs, "/staging/*.parquet")
		require.NoError(t, err)
		require.Len(t, matches, 1)

		f, err := fs.Open(matches[0])
		require.NoError(t, err)
		defer f.Close()

		tbl, err := pqarrow.ReadTable(context.Background(), f,
			parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
		require.NoError(t, err)
		defer tbl.Release()
		rows = tbl.NumRows()
		assert.Equal(t, "id", tbl.Schema().Field(0).Name)
	}}

	res, err := NewLoader(ColumnarFile, Options{Fs: fs, StagingDir: "/staging"}).
		Load(context.Background(), exec, idNameRecord(t, 42), "t", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(42), rows)
	assert.Equal(t, ColumnarFile, res.Strategy)
	assert.True(t, strings.HasSuffix(res.StagedFile, ".parquet"))
	exists, _ := afero.Exists(fs, res.StagedFile)
	assert.False(t, exists)
}

func TestStagedFileNamesAreUnique(t *testing.T) {
	loader := NewLoader(LocalFile, Options{StagingDir: "/staging"})
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p := loader.stagingPath("t", "csv")
		assert.False(t, seen[p], p)
		seen[p] = true
	}
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"":              Inline,
		"inline":        Inline,
		"local_file":    LocalFile,
		"CSV":           LocalFile,
		"columnar_file": ColumnarFile,
		"parquet":       ColumnarFile,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseStrategy("hdfs")
	var target *errors.ErrStrategyUnknown
	assert.ErrorAs(t, err, &target)
}
