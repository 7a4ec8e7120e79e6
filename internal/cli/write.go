package cli

import (
	"context"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/spf13/cobra"

	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/planner"
	"github.com/canonica-labs/rhive/internal/source"
	"github.com/canonica-labs/rhive/pkg/hive"
)

// sourceFlags selects the local table a command reads.
type sourceFlags struct {
	input     string
	format    string
	delimiter string
	driver    string
	dsn       string
	query     string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "CSV or Parquet file to read")
	cmd.Flags().StringVar(&f.format, "format", "", "input format: csv or parquet (default: from the file extension)")
	cmd.Flags().StringVar(&f.delimiter, "input-delimiter", "", "CSV field delimiter (default: ',' or tab for .tsv)")
	cmd.Flags().StringVar(&f.driver, "source-driver", "duckdb", "driver for --source-query: duckdb, sqlite or postgres")
	cmd.Flags().StringVar(&f.dsn, "source-dsn", "", "data source name for --source-query")
	cmd.Flags().StringVar(&f.query, "source-query", "", "SQL query producing the rows to write")
}

func (f *sourceFlags) spec() (source.Spec, error) {
	if (f.input == "") == (f.query == "") {
		return source.Spec{}, errors.NewInvalidArgument("input", "exactly one of --input or --source-query is required")
	}
	spec := source.Spec{
		Kind:   source.Kind(strings.ToLower(f.format)),
		Path:   f.input,
		Driver: f.driver,
		DSN:    f.dsn,
		Query:  f.query,
	}
	if f.query != "" {
		spec.Kind = source.SQL
	}
	if f.delimiter != "" {
		r := []rune(f.delimiter)
		if f.delimiter == `\t` {
			r = []rune{'\t'}
		}
		if len(r) != 1 {
			return source.Spec{}, errors.NewInvalidArgument("input-delimiter", "delimiter must be a single character")
		}
		spec.Delimiter = r[0]
	}
	return spec, nil
}

func (f *sourceFlags) load(ctx context.Context) (arrow.Record, error) {
	spec, err := f.spec()
	if err != nil {
		return nil, err
	}
	return source.Load(ctx, spec)
}

// WriteSummary is the machine-readable result of the write command.
type WriteSummary struct {
	OperationID string   `json:"operation_id" yaml:"operation_id"`
	Table       string   `json:"table" yaml:"table"`
	Mode        string   `json:"mode" yaml:"mode"`
	Action      string   `json:"action" yaml:"action"`
	Strategy    string   `json:"strategy" yaml:"strategy"`
	Rows        int64    `json:"rows" yaml:"rows"`
	Dropped     bool     `json:"dropped" yaml:"dropped"`
	Created     bool     `json:"created" yaml:"created"`
	Skipped     bool     `json:"skipped" yaml:"skipped"`
	Statements  []string `json:"statements" yaml:"statements"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	DurationMs  int64    `json:"duration_ms" yaml:"duration_ms"`
}

func summarizeWrite(res *hive.WriteResult) WriteSummary {
	return WriteSummary{
		OperationID: res.OperationID,
		Table:       res.Table,
		Mode:        res.Mode.String(),
		Action:      res.Action.String(),
		Strategy:    res.Strategy.String(),
		Rows:        res.Rows,
		Dropped:     res.Dropped,
		Created:     res.Created,
		Skipped:     res.Skipped,
		Statements:  res.Statements,
		Warnings:    res.Warnings,
		DurationMs:  res.Duration.Milliseconds(),
	}
}

func (c *CLI) newWriteCmd() *cobra.Command {
	var (
		src       sourceFlags
		mode      string
		partition string
		noCreate  bool
		strategy  string
	)

	cmd := &cobra.Command{
		Use:   "write <table>",
		Short: "Write a local table into the warehouse",
		Long: `Write a CSV file, Parquet file or SQL query result into a warehouse table.

Modes:
  error_if_exists  fail when the table exists (default)
  overwrite        drop and recreate the table
  append           add rows to the table, creating it when missing
  ignore           do nothing when the table exists

Examples:
  rhive write analytics.orders --input orders.csv --partition-by region
  rhive write events --source-query "SELECT * FROM 'events.parquet'" --mode append
  rhive write big_table --input big.parquet --strategy columnar_file`,
		Args: exactArgs(1, "rhive write <table> --input <file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := planner.ParseWriteMode(mode)
			if err != nil {
				return err
			}
			opts := hive.WriteOptions{
				Mode:          m,
				PartitionCols: splitList(partition),
				CreateTable:   !noCreate,
			}
			return c.runWrite(cmd.Context(), args[0], &src, opts, strategy)
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&mode, "mode", "m", planner.ErrorIfExists.String(), "write mode: overwrite, append, error_if_exists or ignore")
	cmd.Flags().StringVar(&partition, "partition-by", "", "comma-separated partition columns")
	cmd.Flags().BoolVar(&noCreate, "no-create", false, "never issue CREATE TABLE")
	cmd.Flags().StringVar(&strategy, "strategy", "", "ingestion strategy: inline, local_file or columnar_file (default: writer.strategy)")

	return cmd
}

func (c *CLI) runWrite(ctx context.Context, table string, src *sourceFlags, opts hive.WriteOptions, strategy string) error {
	start := time.Now()
	rec, err := src.load(ctx)
	if err != nil {
		return err
	}
	defer rec.Release()
	c.debugf("loaded %d rows x %d columns in %s\n", rec.NumRows(), rec.NumCols(), time.Since(start))

	var res *hive.WriteResult
	err = c.withWriter(ctx, strategy, func(w *hive.Writer) error {
		var werr error
		res, werr = w.Write(ctx, rec, table, opts)
		return werr
	})
	if err != nil {
		return err
	}

	summary := summarizeWrite(res)
	return c.renderValue(summary, func() {
		if res.Plan != nil {
			c.printf("%s", res.Plan.Explain())
		}
		switch {
		case res.Skipped:
			c.printf("✓ %s exists; write skipped (mode %s)\n", res.Table, res.Mode)
		default:
			c.printf("✓ Wrote %d rows to %s using %s in %s\n", res.Rows, res.Table, res.Strategy, res.Duration.Round(time.Millisecond))
		}
		for _, w := range res.Warnings {
			c.errorf("warning: %s\n", w)
		}
		c.printf("  Operation: %s\n", res.OperationID)
	})
}
