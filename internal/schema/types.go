// Package schema maps Arrow column types to warehouse column types and
// builds the CREATE TABLE statements for a local table.
package schema

import (
	"strings"

	"github.com/apache/arrow/go/v14/arrow"

	"github.com/canonica-labs/rhive/internal/errors"
)

// WarehouseType is a warehouse column-type keyword.
type WarehouseType string

// The closed set of warehouse types a local column can be written as.
const (
	TypeBoolean   WarehouseType = "BOOLEAN"
	TypeInt       WarehouseType = "INT"
	TypeBigInt    WarehouseType = "BIGINT"
	TypeFloat     WarehouseType = "FLOAT"
	TypeDouble    WarehouseType = "DOUBLE"
	TypeString    WarehouseType = "STRING"
	TypeDate      WarehouseType = "DATE"
	TypeTimestamp WarehouseType = "TIMESTAMP"
)

// String returns the type keyword.
func (t WarehouseType) String() string {
	return string(t)
}

// MapType maps an Arrow data type to its warehouse type.
// Types outside the supported set return ErrUnsupportedType; column names
// the offending column in that error.
func MapType(column string, dt arrow.DataType) (WarehouseType, error) {
	if dt == nil {
		return "", errors.NewUnsupportedType(column, "null")
	}

	switch dt.ID() {
	case arrow.BOOL:
		return TypeBoolean, nil
	case arrow.INT8, arrow.INT16, arrow.INT32,
		arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return TypeInt, nil
	case arrow.INT64, arrow.UINT64:
		return TypeBigInt, nil
	case arrow.FLOAT32:
		return TypeFloat, nil
	case arrow.FLOAT64:
		return TypeDouble, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return TypeString, nil
	case arrow.DATE32, arrow.DATE64:
		return TypeDate, nil
	case arrow.TIMESTAMP:
		return TypeTimestamp, nil
	default:
		return "", errors.NewUnsupportedType(column, dt.String())
	}
}

// ArrowType maps a warehouse (or driver-reported) type name back to an Arrow
// type for query results. Parameterised names such as DECIMAL(10,2) or
// VARCHAR(20) are matched on their base name; HiveServer2 names like
// BIGINT_TYPE are accepted. Anything unknown is read as a string.
func ArrowType(name string) arrow.DataType {
	base := strings.ToUpper(strings.TrimSpace(name))
	base = strings.TrimSuffix(base, "_TYPE")
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "BOOLEAN", "BOOL":
		return arrow.FixedWidthTypes.Boolean
	case "TINYINT", "INT1":
		return arrow.PrimitiveTypes.Int8
	case "SMALLINT", "INT2":
		return arrow.PrimitiveTypes.Int16
	case "INT", "INTEGER", "INT4":
		return arrow.PrimitiveTypes.Int32
	case "BIGINT", "INT8", "LONG":
		return arrow.PrimitiveTypes.Int64
	case "FLOAT", "FLOAT4":
		return arrow.PrimitiveTypes.Float32
	case "DOUBLE", "FLOAT8", "REAL", "DOUBLE PRECISION":
		return arrow.PrimitiveTypes.Float64
	case "DATE":
		return arrow.FixedWidthTypes.Date32
	case "TIMESTAMP", "DATETIME", "TIMESTAMP WITHOUT TIME ZONE":
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	case "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}
