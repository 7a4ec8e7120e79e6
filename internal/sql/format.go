package sql

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
)

// TimestampLayout is the literal layout used for TIMESTAMP values.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

// DateLayout is the literal layout used for DATE values.
const DateLayout = "2006-01-02"

// Date is a calendar day extracted from a date32/date64 cell.
type Date struct {
	time.Time
}

// String renders the day as yyyy-mm-dd.
func (d Date) String() string {
	return d.Time.Format(DateLayout)
}

// FormatValue renders a single cell as a SQL literal.
//
// nil renders as NULL. Booleans and numbers render unquoted in their
// canonical decimal form. Everything else is rendered as text, wrapped
// in single quotes, with embedded quotes doubled.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case Date:
		return Quote(x.String())
	case time.Time:
		return Quote(x.Format(TimestampLayout))
	case string:
		return Quote(x)
	case fmt.Stringer:
		return Quote(x.String())
	default:
		return Quote(fmt.Sprint(x))
	}
}

// Quote wraps s in single quotes, doubling every embedded quote.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Non-finite floats have no numeric literal form, so they go out as text
// and rely on the warehouse's implicit string-to-double cast.
func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Quote(strconv.FormatFloat(f, 'g', -1, bits))
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// CellValue returns the Go value of one cell: nil for nulls, Date for
// date columns, time.Time for timestamps, otherwise the natural scalar.
func CellValue(arr arrow.Array, row int) any {
	if arr.IsNull(row) {
		return nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(row)
	case *array.Int8:
		return a.Value(row)
	case *array.Int16:
		return a.Value(row)
	case *array.Int32:
		return a.Value(row)
	case *array.Int64:
		return a.Value(row)
	case *array.Uint8:
		return a.Value(row)
	case *array.Uint16:
		return a.Value(row)
	case *array.Uint32:
		return a.Value(row)
	case *array.Uint64:
		return a.Value(row)
	case *array.Float32:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	case *array.LargeString:
		return a.Value(row)
	case *array.Date32:
		return Date{a.Value(row).ToTime().UTC()}
	case *array.Date64:
		return Date{a.Value(row).ToTime().UTC()}
	case *array.Timestamp:
		typ := a.DataType().(*arrow.TimestampType)
		toTime, err := typ.GetToTimeFunc()
		if err != nil {
			return a.Value(row).ToTime(typ.Unit)
		}
		return toTime(a.Value(row))
	default:
		return arr.ValueStr(row)
	}
}
