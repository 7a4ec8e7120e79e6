package hive

import (
	"context"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/ingest"
	"github.com/canonica-labs/rhive/internal/observability"
	"github.com/canonica-labs/rhive/internal/planner"
	"github.com/canonica-labs/rhive/internal/schema"
	"github.com/canonica-labs/rhive/internal/sql"
)

// WriteOptions controls one Write call.
type WriteOptions struct {
	// Mode decides what happens when the table already exists.
	Mode planner.WriteMode

	// PartitionCols are declared in PARTITIONED BY, in this order.
	PartitionCols []string

	// CreateTable issues CREATE TABLE when the plan calls for it.
	CreateTable bool
}

// DefaultWriteOptions returns mode ErrorIfExists with table creation.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		Mode:        planner.ErrorIfExists,
		CreateTable: true,
	}
}

// WriteResult describes a completed write.
type WriteResult struct {
	OperationID string
	Table       string
	Mode        planner.WriteMode
	Action      planner.PreAction
	Plan        *planner.WritePlan

	Dropped bool
	Created bool
	Skipped bool

	Strategy   ingest.Strategy
	Rows       int64
	Statements []string
	Warnings   []string
	Duration   time.Duration
}

// Writer persists Arrow records to the warehouse.
type Writer struct {
	handle
}

// NewWriter creates a disconnected Writer.
func NewWriter(cfg Config, factory adapters.Factory, opts ...Option) *Writer {
	return &Writer{handle: newHandle(cfg, factory, opts)}
}

// Write persists rec into table.
//
// Validation happens before any warehouse I/O. Then exactly one existence
// query runs, the planner decides the pre-action, and DROP, CREATE and
// the load execute in that order. The first failure stops the write and
// is returned; statements already executed are not rolled back. Ignore on
// an existing table returns a result with Skipped set.
func (w *Writer) Write(ctx context.Context, rec arrow.Record, table string, opts WriteOptions) (*WriteResult, error) {
	entry := newOperation(observability.KindWrite, table)
	entry.Mode = opts.Mode.String()
	entry.Strategy = w.opts.loader.Strategy().String()

	res := &WriteResult{
		OperationID: entry.OperationID,
		Table:       table,
		Mode:        opts.Mode,
		Strategy:    w.opts.loader.Strategy(),
	}
	err := w.write(ctx, rec, table, opts, res)
	res.Duration = time.Since(entry.StartedAt)

	entry.Action = res.Action.String()
	entry.Rows = res.Rows
	entry.Statements = len(res.Statements)
	if res.Skipped {
		entry.Outcome = observability.OutcomeSkipped
	}
	w.record(ctx, entry, err)
	return res, err
}

func (w *Writer) write(ctx context.Context, rec arrow.Record, table string, opts WriteOptions, res *WriteResult) error {
	client, err := w.require("write")
	if err != nil {
		return err
	}
	ddl, err := validateWrite(rec, table, opts.PartitionCols)
	if err != nil {
		return err
	}

	exists, err := w.exists(ctx, client, table, res)
	if err != nil {
		return err
	}

	plan, err := planner.Plan(table, opts.Mode, exists, opts.CreateTable)
	if err != nil {
		res.Action = planner.Fail
		return err
	}
	res.Plan = plan
	res.Action = plan.Action
	w.opts.logger.Debug("write planned",
		zap.String("operation_id", res.OperationID),
		zap.String("table", table),
		zap.Bool("exists", exists),
		zap.Stringer("action", plan.Action))

	if plan.Skipped {
		res.Skipped = true
		return nil
	}

	for _, step := range plan.Steps {
		switch step {
		case planner.StepDrop:
			stmt := sql.DropTable(table, false)
			if err := w.exec(ctx, client, errors.StageDrop, stmt, res); err != nil {
				return err
			}
			res.Dropped = true
		case planner.StepCreate:
			if err := w.exec(ctx, client, errors.StageCreate, ddl, res); err != nil {
				return err
			}
			res.Created = true
		case planner.StepLoad:
			load, err := w.opts.loader.Load(ctx, client, rec, table, opts.PartitionCols)
			res.Rows = load.Rows
			res.Statements = append(res.Statements, load.Statements...)
			res.Warnings = append(res.Warnings, load.Warnings...)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// validateWrite checks everything that can be checked locally and returns
// the CREATE TABLE statement for rec.
func validateWrite(rec arrow.Record, table string, partitionCols []string) (string, error) {
	if err := sql.ValidateIdentifier(table); err != nil {
		return "", err
	}
	if rec == nil {
		return "", errors.NewInvalidArgument("table", "local table is nil")
	}
	s := rec.Schema()
	if s.NumFields() == 0 {
		return "", errors.NewInvalidArgument("table", "local table has no columns")
	}
	for _, f := range s.Fields() {
		if err := sql.ValidateColumnName(f.Name); err != nil {
			return "", err
		}
	}
	if err := schema.ValidatePartitionColumns(s, partitionCols); err != nil {
		return "", err
	}
	return schema.CreateTableStatement(table, s, partitionCols)
}

func (w *Writer) exists(ctx context.Context, client adapters.Client, table string, res *WriteResult) (bool, error) {
	stmt := sql.ShowTablesLike(table)
	res.Statements = append(res.Statements, stmt)

	rec, err := client.Query(ctx, stmt)
	if err != nil {
		return false, errors.NewExecutionFailure(errors.StageExistsCheck, stmt, err)
	}
	defer rec.Release()
	return rec.NumRows() > 0, nil
}

func (w *Writer) exec(ctx context.Context, client adapters.Client, stage, stmt string, res *WriteResult) error {
	res.Statements = append(res.Statements, stmt)
	if err := client.Exec(ctx, stmt); err != nil {
		return errors.NewExecutionFailure(stage, stmt, err)
	}
	return nil
}

// CreateTable creates table from rec's schema without loading data.
func (w *Writer) CreateTable(ctx context.Context, rec arrow.Record, table string, partitionCols []string) (err error) {
	entry := newOperation(observability.KindDDL, table)
	defer func() { w.record(ctx, entry, err) }()

	client, err := w.require("create table")
	if err != nil {
		return err
	}
	ddl, err := validateWrite(rec, table, partitionCols)
	if err != nil {
		return err
	}
	entry.Statements = 1
	if err := client.Exec(ctx, ddl); err != nil {
		return errors.NewExecutionFailure(errors.StageCreate, ddl, err)
	}
	return nil
}

// DropTable drops table. With ifExists a missing table is not an error.
func (w *Writer) DropTable(ctx context.Context, table string, ifExists bool) (err error) {
	entry := newOperation(observability.KindDDL, table)
	defer func() { w.record(ctx, entry, err) }()

	client, err := w.require("drop table")
	if err != nil {
		return err
	}
	if err := sql.ValidateIdentifier(table); err != nil {
		return err
	}
	stmt := sql.DropTable(table, ifExists)
	entry.Statements = 1
	if err := client.Exec(ctx, stmt); err != nil {
		return errors.NewExecutionFailure(errors.StageDrop, stmt, err)
	}
	return nil
}
