package memory

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/csv"
	arrowmem "github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/canonica-labs/rhive/internal/sql"
)

// load reads a staged file into a table. Fields map positionally onto
// data columns followed by partition columns.
func (c *Client) load(path, name string, overwrite bool) error {
	t, ok := c.tables[c.key(name)]
	if !ok {
		return semanticError("Table not found %s", name)
	}
	width := len(t.Columns) + len(t.Partitions)

	var (
		rows [][]any
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		rows, err = c.readParquet(path)
	} else {
		rows, err = c.readDelimited(path, width)
	}
	if err != nil {
		return semanticError("Invalid path '%s': %v", path, err)
	}

	for i, row := range rows {
		if len(row) != width {
			return semanticError("line %d has %d fields, table %s has %d columns", i+1, len(row), name, width)
		}
	}
	if overwrite {
		t.Rows = nil
	}
	t.Rows = append(t.Rows, rows...)
	return nil
}

func (c *Client) readDelimited(path string, width int) ([][]any, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := make([]arrow.Field, width)
	for i := range fields {
		fields[i] = arrow.Field{Name: fmt.Sprintf("_c%d", i), Type: arrow.BinaryTypes.String, Nullable: true}
	}

	r := csv.NewReader(f, arrow.NewSchema(fields, nil),
		csv.WithComma(c.delimiter),
		csv.WithNullReader(true, c.nullMarker),
		csv.WithChunk(1024),
	)
	defer r.Release()

	var rows [][]any
	for r.Next() {
		rows = append(rows, recordRows(r.Record())...)
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return rows, nil
}

func (c *Client) readParquet(path string) ([][]any, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f, file.WithReadProps(parquet.NewReaderProperties(arrowmem.DefaultAllocator)))
	if err != nil {
		return nil, err
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: 1024}, arrowmem.DefaultAllocator)
	if err != nil {
		return nil, err
	}
	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, 1024)
	defer tr.Release()

	var rows [][]any
	for tr.Next() {
		rows = append(rows, recordRows(tr.Record())...)
	}
	return rows, nil
}

// recordRows copies a record into rows of plain values. Dates and
// timestamps are kept as their warehouse text.
func recordRows(rec arrow.Record) [][]any {
	rows := make([][]any, rec.NumRows())
	for r := range rows {
		row := make([]any, rec.NumCols())
		for i, col := range rec.Columns() {
			switch v := sql.CellValue(col, r).(type) {
			case sql.Date:
				row[i] = v.String()
			case time.Time:
				row[i] = v.UTC().Format(sql.TimestampLayout)
			default:
				row[i] = v
			}
		}
		rows[r] = row
	}
	return rows
}
