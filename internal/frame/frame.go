// Package frame builds Arrow records from driver results and renders them
// back to text.
package frame

import (
	dbsql "database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/canonica-labs/rhive/internal/schema"
	"github.com/canonica-labs/rhive/internal/sql"
)

// ColumnSpec names and types one result column.
type ColumnSpec struct {
	Name string
	Type arrow.DataType
}

// SpecsFromTypeNames builds column specs from driver type names.
func SpecsFromTypeNames(names, typeNames []string) []ColumnSpec {
	specs := make([]ColumnSpec, len(names))
	for i, n := range names {
		typ := ""
		if i < len(typeNames) {
			typ = typeNames[i]
		}
		specs[i] = ColumnSpec{Name: n, Type: schema.ArrowType(typ)}
	}
	return specs
}

// Schema returns the Arrow schema for specs. Every field is nullable.
func Schema(specs []ColumnSpec) *arrow.Schema {
	fields := make([]arrow.Field, len(specs))
	for i, c := range specs {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// FromValues builds a record from positional rows.
func FromValues(specs []ColumnSpec, rows [][]any) (arrow.Record, error) {
	s := Schema(specs)
	b := array.NewRecordBuilder(memory.DefaultAllocator, s)
	defer b.Release()

	for r, row := range rows {
		if len(row) != len(specs) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(specs))
		}
		for i, v := range row {
			if err := appendValue(b.Field(i), v); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r, specs[i].Name, err)
			}
		}
	}
	return b.NewRecord(), nil
}

// FromMaps builds a record from rows keyed by column name, as returned by
// row-map cursors. Missing keys become nulls.
func FromMaps(specs []ColumnSpec, rows []map[string]any) (arrow.Record, error) {
	values := make([][]any, len(rows))
	for r, m := range rows {
		row := make([]any, len(specs))
		for i, c := range specs {
			v, ok := m[c.Name]
			if !ok {
				// Some cursors prefix keys with the table name.
				v = lookupSuffix(m, c.Name)
			}
			row[i] = v
		}
		values[r] = row
	}
	return FromValues(specs, values)
}

func lookupSuffix(m map[string]any, name string) any {
	for k, v := range m {
		if strings.HasSuffix(k, "."+name) {
			return v
		}
	}
	return nil
}

// FromRows drains rows into a record. Column types come from the
// driver's DatabaseTypeName. rows is not closed.
func FromRows(rows *dbsql.Rows) (arrow.Record, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	names := make([]string, len(cols))
	typeNames := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
		typeNames[i] = c.DatabaseTypeName()
	}
	specs := SpecsFromTypeNames(names, typeNames)

	var values [][]any
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return FromValues(specs, values)
}

// Empty returns a record with schema s and no rows.
func Empty(s *arrow.Schema) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, s)
	defer b.Release()
	return b.NewRecord()
}

// Concat joins records that share a schema into one record.
func Concat(recs []arrow.Record) (arrow.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("concat: no records")
	}
	if len(recs) == 1 {
		recs[0].Retain()
		return recs[0], nil
	}

	s := recs[0].Schema()
	var rows int64
	for _, r := range recs {
		if !r.Schema().Equal(s) {
			return nil, fmt.Errorf("concat: schema mismatch: %s vs %s", s, r.Schema())
		}
		rows += r.NumRows()
	}

	cols := make([]arrow.Array, s.NumFields())
	for i := range cols {
		parts := make([]arrow.Array, len(recs))
		for j, r := range recs {
			parts[j] = r.Column(i)
		}
		col, err := array.Concatenate(parts, memory.DefaultAllocator)
		if err != nil {
			for _, c := range cols[:i] {
				c.Release()
			}
			return nil, fmt.Errorf("concat column %s: %w", s.Field(i).Name, err)
		}
		cols[i] = col
	}

	out := array.NewRecord(s, cols, rows)
	for _, c := range cols {
		c.Release()
	}
	return out, nil
}

// Strings renders rec as a header and text rows. Nulls render as NULL.
func Strings(rec arrow.Record) (header []string, rows [][]string) {
	s := rec.Schema()
	header = make([]string, s.NumFields())
	for i, f := range s.Fields() {
		header[i] = f.Name
	}

	n := int(rec.NumRows())
	rows = make([][]string, n)
	for r := 0; r < n; r++ {
		row := make([]string, len(header))
		for c := range header {
			row[c] = text(sql.CellValue(rec.Column(c), r))
		}
		rows[r] = row
	}
	return header, rows
}

// Records renders rec as one map per row, with native Go values.
func Records(rec arrow.Record) []map[string]any {
	s := rec.Schema()
	n := int(rec.NumRows())
	out := make([]map[string]any, n)
	for r := 0; r < n; r++ {
		m := make(map[string]any, s.NumFields())
		for c, f := range s.Fields() {
			v := sql.CellValue(rec.Column(c), r)
			switch x := v.(type) {
			case sql.Date:
				v = x.String()
			case time.Time:
				v = x.Format(sql.TimestampLayout)
			}
			m[f.Name] = v
		}
		out[r] = m
	}
	return out
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		return x.Format(sql.TimestampLayout)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
