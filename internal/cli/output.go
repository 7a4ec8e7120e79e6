package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/csv"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/canonica-labs/rhive/internal/frame"
)

// renderRecord writes a query result in the selected output format.
func (c *CLI) renderRecord(rec arrow.Record) error {
	switch c.output {
	case OutputJSON:
		return writeJSON(c.out, frame.Records(rec))
	case OutputYAML:
		return writeYAML(c.out, frame.Records(rec))
	case OutputCSV:
		return writeCSV(c.out, rec)
	default:
		return c.writeTable(rec)
	}
}

// renderValue writes a structured result. Table output falls back to text
// for callers that print their own summary.
func (c *CLI) renderValue(v any, text func()) error {
	switch c.output {
	case OutputJSON:
		return writeJSON(c.out, v)
	case OutputYAML:
		return writeYAML(c.out, v)
	default:
		text()
		return nil
	}
}

func (c *CLI) writeTable(rec arrow.Record) error {
	header, rows := frame.Strings(rec)
	if len(rows) == 0 {
		c.println("(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetStyle(table.StyleLight)

	h := make(table.Row, len(header))
	for i, name := range header {
		h[i] = name
	}
	t.AppendHeader(h)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.Render()
	c.printf("(%d rows)\n", len(rows))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeCSV(w io.Writer, rec arrow.Record) error {
	cw := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter("NULL"))
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return cw.Flush()
}
