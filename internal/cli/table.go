package cli

import (
	"github.com/apache/arrow/go/v14/arrow"
	"github.com/spf13/cobra"

	"github.com/canonica-labs/rhive/pkg/hive"
)

func (c *CLI) newCreateTableCmd() *cobra.Command {
	var (
		src       sourceFlags
		partition string
	)

	cmd := &cobra.Command{
		Use:   "create-table <table>",
		Short: "Create a table from a local table's schema",
		Long: `Create a warehouse table whose columns match a local table. No rows are loaded.

Example:
  rhive create-table analytics.orders --input orders.parquet --partition-by region`,
		Args: exactArgs(1, "rhive create-table <table> --input <file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rec, err := src.load(ctx)
			if err != nil {
				return err
			}
			defer rec.Release()

			err = c.withWriter(ctx, "", func(w *hive.Writer) error {
				return w.CreateTable(ctx, rec, args[0], splitList(partition))
			})
			if err != nil {
				return err
			}
			return c.renderValue(map[string]any{"table": args[0], "created": true}, func() {
				c.printf("✓ Created %s (%d columns)\n", args[0], rec.NumCols())
			})
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&partition, "partition-by", "", "comma-separated partition columns")
	return cmd
}

func (c *CLI) newDropCmd() *cobra.Command {
	var ifExists bool

	cmd := &cobra.Command{
		Use:   "drop <table>",
		Short: "Drop a table",
		Args:  exactArgs(1, "rhive drop <table> [--if-exists]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			err := c.withWriter(ctx, "", func(w *hive.Writer) error {
				return w.DropTable(ctx, args[0], ifExists)
			})
			if err != nil {
				return err
			}
			return c.renderValue(map[string]any{"table": args[0], "dropped": true}, func() {
				c.printf("✓ Dropped %s\n", args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&ifExists, "if-exists", false, "do not fail when the table is missing")
	return cmd
}

func (c *CLI) newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables in the current database",
		Args:  exactArgs(0, "rhive tables"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRead(cmd, func(r *hive.Reader) (arrow.Record, error) {
				return r.ShowTables(cmd.Context())
			})
		},
	}
}

func (c *CLI) newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show a table's columns and types",
		Args:  exactArgs(1, "rhive describe <table>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRead(cmd, func(r *hive.Reader) (arrow.Record, error) {
				return r.Describe(cmd.Context(), args[0])
			})
		},
	}
}

func (c *CLI) newSampleCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sample <table>",
		Short: "Show the first rows of a table",
		Args:  exactArgs(1, "rhive sample <table> [--limit n]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRead(cmd, func(r *hive.Reader) (arrow.Record, error) {
				return r.Sample(cmd.Context(), args[0], limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", hive.DefaultSampleLimit, "number of rows")
	return cmd
}

// runRead opens a reader session, runs fn and renders its record.
func (c *CLI) runRead(cmd *cobra.Command, fn func(*hive.Reader) (arrow.Record, error)) error {
	var rec arrow.Record
	err := c.withReader(cmd.Context(), func(r *hive.Reader) error {
		var rerr error
		rec, rerr = fn(r)
		return rerr
	})
	if rec != nil {
		defer rec.Release()
	}
	if err != nil {
		return err
	}
	return c.renderRecord(rec)
}
