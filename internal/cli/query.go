package cli

import (
	"fmt"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/spf13/cobra"

	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/sql"
	"github.com/canonica-labs/rhive/pkg/hive"
)

// readOnly rejects statements that modify the warehouse. Writes go through
// write, create-table and drop so they are planned and journaled.
func readOnly(stmt string) error {
	if op := sql.Classify(stmt); op.IsWrite() {
		return errors.NewInvalidArgument("query",
			fmt.Sprintf("%s statements are not allowed here; use rhive write, create-table or drop", op))
	}
	return nil
}

func (c *CLI) newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <SQL>",
		Short: "Run a read-only SQL query",
		Long: `Run a SELECT, SHOW or DESCRIBE statement and print the result.

Example:
  rhive query "SELECT region, COUNT(*) FROM analytics.orders GROUP BY region"
  rhive query "SELECT * FROM events LIMIT 5" --output csv`,
		Args: exactArgs(1, `rhive query "<SQL>"`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readOnly(args[0]); err != nil {
				return err
			}
			return c.runRead(cmd, func(r *hive.Reader) (arrow.Record, error) {
				return r.Query(cmd.Context(), args[0])
			})
		},
	}
}

func (c *CLI) newBenchCmd() *cobra.Command {
	var iterations int

	cmd := &cobra.Command{
		Use:   "bench <SQL>",
		Short: "Time repeated runs of a query",
		Long: `Run a read-only query several times in one session and report latency.

Example:
  rhive bench "SELECT COUNT(*) FROM analytics.orders" --iterations 20`,
		Args: exactArgs(1, `rhive bench "<SQL>" [--iterations n]`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readOnly(args[0]); err != nil {
				return err
			}
			var res *hive.BenchmarkResult
			err := c.withReader(cmd.Context(), func(r *hive.Reader) error {
				var berr error
				res, berr = r.Benchmark(cmd.Context(), args[0], iterations)
				return berr
			})
			if err != nil {
				return err
			}
			return c.renderValue(res, func() {
				c.printf("Query:      %s\n", res.Query)
				c.printf("Iterations: %d\n", res.Iterations)
				c.printf("Rows:       %d\n", res.Rows)
				c.printf("Average:    %s\n", res.Average.Round(time.Microsecond))
				c.printf("Min:        %s\n", res.Min.Round(time.Microsecond))
				c.printf("Max:        %s\n", res.Max.Round(time.Microsecond))
				c.printf("QPS:        %.2f\n", res.QueriesPerSecond)
			})
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", hive.DefaultBenchmarkIterations, "number of runs")
	return cmd
}
