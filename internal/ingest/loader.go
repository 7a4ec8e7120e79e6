package ingest

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/errors"
)

// LoadResult describes what a load did.
type LoadResult struct {
	// Strategy is the strategy that ran.
	Strategy Strategy

	// Rows is the number of rows in the local table.
	Rows int64

	// Statements are the statements issued, in order. A failed statement
	// is the last entry.
	Statements []string

	// Batches is the number of inline INSERT statements that succeeded.
	Batches int

	// StagedFile is the temporary file a file strategy produced.
	StagedFile string

	// Warnings are non-fatal conditions: large inline writes, staged files
	// that could not be removed.
	Warnings []string
}

// Loader loads local tables with a fixed strategy.
type Loader struct {
	strategy Strategy
	opts     Options
}

// NewLoader creates a Loader. Zero-valued options take their defaults.
func NewLoader(strategy Strategy, opts Options) *Loader {
	return &Loader{
		strategy: strategy,
		opts:     opts.withDefaults(),
	}
}

// Strategy returns the configured strategy.
func (l *Loader) Strategy() Strategy {
	return l.strategy
}

// Options returns the effective options.
func (l *Loader) Options() Options {
	return l.opts
}

// Load writes every row of rec into table, which must already exist.
// Columns are sent in table order: data columns in schema order followed
// by partitionCols in the given order.
//
// Statements run sequentially and the first failure stops the load.
// Rows committed by earlier statements stay in the table. The returned
// LoadResult is non-nil even when err is not, and lists what was issued.
func (l *Loader) Load(ctx context.Context, exec Executor, rec arrow.Record, table string, partitionCols []string) (*LoadResult, error) {
	res := &LoadResult{Strategy: l.strategy}
	if rec == nil {
		return res, errors.NewInvalidArgument("table", "local table is nil")
	}
	res.Rows = rec.NumRows()

	order, err := tableOrder(rec.Schema(), partitionCols)
	if err != nil {
		return res, err
	}
	if res.Rows == 0 {
		return res, nil
	}

	switch l.strategy {
	case Inline:
		err = l.loadInline(ctx, exec, rec, table, order, res)
	case LocalFile:
		err = l.loadFile(ctx, exec, rec, table, order, res, "csv", l.writeDelimited)
	case ColumnarFile:
		err = l.loadFile(ctx, exec, rec, table, order, res, "parquet", writeParquet)
	default:
		err = errors.NewStrategyUnknown(l.strategy.String())
	}
	return res, err
}

func (l *Loader) warn(res *LoadResult, msg string, fields ...zap.Field) {
	res.Warnings = append(res.Warnings, msg)
	l.opts.Logger.Warn(msg, fields...)
}

// tableOrder returns field indices in warehouse column order.
func tableOrder(s *arrow.Schema, partitionCols []string) ([]int, error) {
	isPartition := make(map[string]bool, len(partitionCols))
	for _, p := range partitionCols {
		isPartition[p] = true
	}

	order := make([]int, 0, s.NumFields())
	for i, f := range s.Fields() {
		if !isPartition[f.Name] {
			order = append(order, i)
		}
	}
	for _, p := range partitionCols {
		idx := s.FieldIndices(p)
		if len(idx) == 0 {
			return nil, errors.NewInvalidArgument("partition_cols", fmt.Sprintf("column %q is not in the table schema", p))
		}
		order = append(order, idx[0])
	}
	return order, nil
}

func columnNames(s *arrow.Schema, order []int) []string {
	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = s.Field(idx).Name
	}
	return names
}
