package cli

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/canonica-labs/rhive/internal/observability"
	"github.com/canonica-labs/rhive/internal/storage"
)

// History is the machine-readable result of the history command.
type History struct {
	Entries []observability.OperationEntry `json:"entries" yaml:"entries"`
	Summary *observability.Summary         `json:"summary" yaml:"summary"`
}

func (c *CLI) newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations from the journal",
		Long: `Show recent write, read and DDL operations, newest first, with a summary.

Operations are journaled to PostgreSQL when journal.dsn is set; otherwise
only operations from the current process are kept.`,
		Args: exactArgs(0, "rhive history [--limit n]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			h := History{Entries: entries, Summary: observability.Summarize(entries)}
			return c.renderValue(h, func() { c.printHistory(h) })
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "number of operations")
	return cmd
}

func (c *CLI) printHistory(h History) {
	if len(h.Entries) == 0 {
		c.println("No operations recorded")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Started", "Kind", "Table", "Mode", "Strategy", "Rows", "Duration", "Outcome"})
	for _, e := range h.Entries {
		t.AppendRow(table.Row{
			e.StartedAt.Format(time.RFC3339),
			e.Kind,
			e.Table,
			e.Mode,
			e.Strategy,
			e.Rows,
			e.Duration.Round(time.Millisecond),
			e.Outcome,
		})
	}
	t.Render()

	s := h.Summary
	c.printf("%d succeeded, %d skipped, %d failed; %d rows written\n",
		s.SuccessCount, s.SkippedCount, s.ErrorCount, s.RowsWritten)
	for _, e := range s.TopErrors {
		c.printf("  %dx %s\n", e.Count, e.Error)
	}
}
