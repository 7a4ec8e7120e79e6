package ingest

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/sql"
)

func (l *Loader) loadInline(ctx context.Context, exec Executor, rec arrow.Record, table string, order []int, res *LoadResult) error {
	rows := rec.NumRows()
	if rows > int64(l.opts.LargeWriteThreshold) {
		l.warn(res,
			fmt.Sprintf("writing %d rows with inline INSERT statements is slow; use the local_file or columnar_file strategy for large tables", rows),
			zap.String("table", table),
			zap.Int64("rows", rows),
			zap.Int("threshold", l.opts.LargeWriteThreshold),
		)
	}

	columns := columnNames(rec.Schema(), order)
	batch := int64(l.opts.BatchSize)

	for start := int64(0); start < rows; start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batch, rows)

		slice := rec.NewSlice(start, end)
		stmt := sql.InsertValues(table, columns, tuples(slice, order))
		slice.Release()

		res.Statements = append(res.Statements, stmt)
		if err := exec.Exec(ctx, stmt); err != nil {
			return errors.NewExecutionFailure(errors.StageInsert, stmt, err)
		}
		res.Batches++
	}
	return nil
}

// tuples renders every row of rec as SQL literals in column order.
func tuples(rec arrow.Record, order []int) [][]string {
	n := int(rec.NumRows())
	out := make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(order))
		for i, idx := range order {
			row[i] = sql.FormatValue(sql.CellValue(rec.Column(idx), r))
		}
		out[r] = row
	}
	return out
}
