package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/canonica-labs/rhive/internal/errors"
)

// StorageFormat is the storage clause every generated table declares.
const StorageFormat = "PARQUET"

// Column is a typed warehouse column definition.
type Column struct {
	Name string
	Type WarehouseType
}

// String renders the column as "<name> <TYPE>".
func (c Column) String() string {
	return c.Name + " " + string(c.Type)
}

// Columns maps every field of s, in schema order.
func Columns(s *arrow.Schema) ([]Column, error) {
	if s == nil {
		return nil, errors.NewInvalidArgument("schema", "schema is nil")
	}
	cols := make([]Column, 0, s.NumFields())
	for _, f := range s.Fields() {
		typ, err := MapType(f.Name, f.Type)
		if err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: f.Name, Type: typ})
	}
	return cols, nil
}

// ValidatePartitionColumns checks that partitionCols is a duplicate-free
// subset of the schema's columns that leaves at least one data column.
func ValidatePartitionColumns(s *arrow.Schema, partitionCols []string) error {
	if len(partitionCols) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(partitionCols))
	for _, p := range partitionCols {
		if seen[p] {
			return errors.NewInvalidArgument("partition_cols", fmt.Sprintf("column %q listed twice", p))
		}
		seen[p] = true
		if len(s.FieldIndices(p)) == 0 {
			return errors.NewInvalidArgument("partition_cols", fmt.Sprintf("column %q is not in the table schema", p))
		}
	}
	if len(seen) >= s.NumFields() {
		return errors.NewInvalidArgument("partition_cols", "at least one non-partition column is required")
	}
	return nil
}

// SplitColumns maps the schema and separates data columns (schema order)
// from partition columns (caller order).
func SplitColumns(s *arrow.Schema, partitionCols []string) (data, partitions []Column, err error) {
	cols, err := Columns(s)
	if err != nil {
		return nil, nil, err
	}

	byName := make(map[string]Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}

	isPartition := make(map[string]bool, len(partitionCols))
	for _, p := range partitionCols {
		c, ok := byName[p]
		if !ok {
			return nil, nil, errors.NewInvalidArgument("partition_cols", fmt.Sprintf("column %q is not in the table schema", p))
		}
		isPartition[p] = true
		partitions = append(partitions, c)
	}

	for _, c := range cols {
		if !isPartition[c.Name] {
			data = append(data, c)
		}
	}
	return data, partitions, nil
}

// CreateTableStatement builds the CREATE TABLE statement for a local table.
//
//	CREATE TABLE t (a BIGINT, b STRING) PARTITIONED BY (p STRING) STORED AS PARQUET
func CreateTableStatement(table string, s *arrow.Schema, partitionCols []string) (string, error) {
	data, partitions, err := SplitColumns(s, partitionCols)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s)", table, joinColumns(data))
	if len(partitions) > 0 {
		fmt.Fprintf(&b, " PARTITIONED BY (%s)", joinColumns(partitions))
	}
	b.WriteString(" STORED AS ")
	b.WriteString(StorageFormat)
	return b.String(), nil
}

func joinColumns(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
