package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/csv"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/sql"
)

type stageFunc func(w io.Writer, rec arrow.Record, order []int) error

func (l *Loader) loadFile(ctx context.Context, exec Executor, rec arrow.Record, table string, order []int, res *LoadResult, ext string, write stageFunc) error {
	path := l.stagingPath(table, ext)
	res.StagedFile = path

	if err := l.opts.Fs.MkdirAll(l.opts.StagingDir, 0o755); err != nil {
		return errors.NewStagingIO("mkdir", l.opts.StagingDir, err)
	}

	f, err := l.opts.Fs.Create(path)
	if err != nil {
		return errors.NewStagingIO("create", path, err)
	}
	defer l.cleanup(path, res)

	if err := write(f, rec, order); err != nil {
		f.Close()
		return errors.NewStagingIO("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewStagingIO("close", path, err)
	}

	stmt := sql.LoadDataLocal(path, table)
	res.Statements = append(res.Statements, stmt)
	if err := exec.Exec(ctx, stmt); err != nil {
		return errors.NewExecutionFailure(errors.StageLoad, stmt, err)
	}
	return nil
}

// stagingPath returns <dir>/<table>_<unixnano>_<random>.<ext>.
func (l *Loader) stagingPath(table, ext string) string {
	base := strings.ReplaceAll(table, ".", "_")
	name := fmt.Sprintf("%s_%d_%s.%s", base, time.Now().UnixNano(), uuid.NewString()[:8], ext)
	return filepath.Join(l.opts.StagingDir, name)
}

// cleanup removes a staged file. Failures become warnings.
func (l *Loader) cleanup(path string, res *LoadResult) {
	if err := l.opts.Fs.Remove(path); err != nil && !os.IsNotExist(err) {
		l.warn(res, fmt.Sprintf("could not remove staged file %s: %v", path, err),
			zap.String("path", path))
	}
}

// writeDelimited writes rec without a header. Date and timestamp columns
// are rendered in the warehouse's literal layout first.
func (l *Loader) writeDelimited(w io.Writer, rec arrow.Record, order []int) error {
	staged := project(rec, order, true)
	defer staged.Release()

	cw := csv.NewWriter(w, staged.Schema(),
		csv.WithComma(l.opts.Delimiter),
		csv.WithHeader(false),
		csv.WithNullWriter(l.opts.NullMarker),
	)
	if err := cw.Write(staged); err != nil {
		return err
	}
	return cw.Flush()
}

// writeParquet writes rec as a snappy Parquet file with INT96 timestamps.
func writeParquet(w io.Writer, rec arrow.Record, order []int) error {
	staged := project(rec, order, false)
	defer staged.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithDeprecatedInt96Timestamps(true))

	// The parquet writer closes closers it is given; the caller owns w.
	fw, err := pqarrow.NewFileWriter(staged.Schema(), struct{ io.Writer }{w}, props, arrProps)
	if err != nil {
		return err
	}
	if err := fw.Write(staged); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

// project reorders the columns of rec. With textTemporal set, date and
// timestamp columns are replaced by their string literals.
func project(rec arrow.Record, order []int, textTemporal bool) arrow.Record {
	fields := make([]arrow.Field, len(order))
	cols := make([]arrow.Array, len(order))
	for i, idx := range order {
		f := rec.Schema().Field(idx)
		col := rec.Column(idx)
		if textTemporal && isTemporal(f.Type) {
			col = temporalText(col)
			f.Type = arrow.BinaryTypes.String
		} else {
			col.Retain()
		}
		fields[i] = f
		cols[i] = col
	}

	out := array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows())
	for _, c := range cols {
		c.Release()
	}
	return out
}

func isTemporal(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP:
		return true
	}
	return false
}

func temporalText(col arrow.Array) arrow.Array {
	b := array.NewStringBuilder(memory.DefaultAllocator)
	defer b.Release()
	b.Reserve(col.Len())

	for i := 0; i < col.Len(); i++ {
		switch v := sql.CellValue(col, i).(type) {
		case nil:
			b.AppendNull()
		case time.Time:
			b.Append(v.Format(sql.TimestampLayout))
		case fmt.Stringer:
			b.Append(v.String())
		default:
			b.Append(fmt.Sprint(v))
		}
	}
	return b.NewArray()
}
