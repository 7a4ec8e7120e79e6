package hive

import (
	"context"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/frame"
	"github.com/canonica-labs/rhive/internal/observability"
	"github.com/canonica-labs/rhive/internal/sql"
)

const (
	DefaultSampleLimit         = 10
	DefaultBenchmarkIterations = 10
)

// Reader runs queries against the warehouse.
type Reader struct {
	handle
}

// NewReader creates a disconnected Reader.
func NewReader(cfg Config, factory adapters.Factory, opts ...Option) *Reader {
	return &Reader{handle: newHandle(cfg, factory, opts)}
}

// Query runs stmt and returns its result. The caller releases the record.
func (r *Reader) Query(ctx context.Context, stmt string) (arrow.Record, error) {
	return r.query(ctx, "query", "", stmt)
}

func (r *Reader) query(ctx context.Context, operation, table, stmt string) (rec arrow.Record, err error) {
	entry := newOperation(observability.KindRead, table)
	defer func() {
		entry.Statements = 1
		if rec != nil {
			entry.Rows = rec.NumRows()
		}
		r.record(ctx, entry, err)
	}()

	client, err := r.require(operation)
	if err != nil {
		return nil, err
	}
	rec, err = client.Query(ctx, stmt)
	if err != nil {
		return nil, errors.NewExecutionFailure(errors.StageQuery, stmt, err)
	}
	return rec, nil
}

// ShowTables lists the tables of the current database.
func (r *Reader) ShowTables(ctx context.Context) (arrow.Record, error) {
	return r.query(ctx, "show tables", "", sql.ShowTables())
}

// Describe returns the column listing of table.
func (r *Reader) Describe(ctx context.Context, table string) (arrow.Record, error) {
	if err := sql.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	return r.query(ctx, "describe", table, sql.Describe(table))
}

// Sample returns up to limit rows of table. limit <= 0 means 10.
func (r *Reader) Sample(ctx context.Context, table string, limit int) (arrow.Record, error) {
	if err := sql.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	stmt, err := sql.SelectSample(table, limit)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, "sample", table, stmt)
}

// TableExists reports whether table is listed by the warehouse.
func (r *Reader) TableExists(ctx context.Context, table string) (bool, error) {
	if err := sql.ValidateIdentifier(table); err != nil {
		return false, err
	}
	rec, err := r.query(ctx, "table exists", table, sql.ShowTablesLike(table))
	if err != nil {
		return false, err
	}
	defer rec.Release()
	return rec.NumRows() > 0, nil
}

// BenchmarkResult is the timing of a repeated query.
type BenchmarkResult struct {
	Query            string        `json:"query" yaml:"query"`
	Iterations       int           `json:"iterations" yaml:"iterations"`
	Rows             int64         `json:"rows" yaml:"rows"`
	Total            time.Duration `json:"total" yaml:"total"`
	Average          time.Duration `json:"average" yaml:"average"`
	Min              time.Duration `json:"min" yaml:"min"`
	Max              time.Duration `json:"max" yaml:"max"`
	QueriesPerSecond float64       `json:"queries_per_second" yaml:"queries_per_second"`
}

// Benchmark runs stmt iterations times, sequentially. iterations <= 0
// means 10. The first failing run stops the benchmark.
func (r *Reader) Benchmark(ctx context.Context, stmt string, iterations int) (*BenchmarkResult, error) {
	if iterations <= 0 {
		iterations = DefaultBenchmarkIterations
	}
	client, err := r.require("benchmark")
	if err != nil {
		return nil, err
	}

	res := &BenchmarkResult{Query: stmt, Iterations: iterations}
	for i := 0; i < iterations; i++ {
		start := time.Now()
		rec, err := client.Query(ctx, stmt)
		elapsed := time.Since(start)
		if err != nil {
			return nil, errors.NewExecutionFailure(errors.StageQuery, stmt, err)
		}
		res.Rows = rec.NumRows()
		rec.Release()

		res.Total += elapsed
		if i == 0 || elapsed < res.Min {
			res.Min = elapsed
		}
		if elapsed > res.Max {
			res.Max = elapsed
		}
	}

	res.Average = res.Total / time.Duration(iterations)
	if res.Total > 0 {
		res.QueriesPerSecond = float64(iterations) / res.Total.Seconds()
	}
	r.opts.logger.Info("benchmark finished",
		zap.Int("iterations", iterations),
		zap.Duration("average", res.Average),
		zap.Float64("qps", res.QueriesPerSecond))
	return res, nil
}

// Records runs stmt and returns its rows as maps.
func (r *Reader) Records(ctx context.Context, stmt string) ([]map[string]any, error) {
	rec, err := r.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rec.Release()
	return frame.Records(rec), nil
}
