package frame

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// appendValue appends a driver value to b, coercing it to the builder's type.
func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if raw, ok := v.([]byte); ok {
		v = string(raw)
	}

	switch bb := b.(type) {
	case *array.BooleanBuilder:
		x, err := toBool(v)
		if err != nil {
			return err
		}
		bb.Append(x)
	case *array.Int8Builder:
		x, err := toInt64(v)
		if err != nil {
			return err
		}
		bb.Append(int8(x))
	case *array.Int16Builder:
		x, err := toInt64(v)
		if err != nil {
			return err
		}
		bb.Append(int16(x))
	case *array.Int32Builder:
		x, err := toInt64(v)
		if err != nil {
			return err
		}
		bb.Append(int32(x))
	case *array.Int64Builder:
		x, err := toInt64(v)
		if err != nil {
			return err
		}
		bb.Append(x)
	case *array.Float32Builder:
		x, err := toFloat64(v)
		if err != nil {
			return err
		}
		bb.Append(float32(x))
	case *array.Float64Builder:
		x, err := toFloat64(v)
		if err != nil {
			return err
		}
		bb.Append(x)
	case *array.Date32Builder:
		x, err := toTime(v)
		if err != nil {
			return err
		}
		bb.Append(arrow.Date32FromTime(x))
	case *array.TimestampBuilder:
		x, err := toTime(v)
		if err != nil {
			return err
		}
		bb.Append(arrow.Timestamp(x.UnixMicro()))
	case *array.StringBuilder:
		bb.Append(toString(v))
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		n, err := toInt64(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", v)
		}
		return n != 0, nil
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to float", v)
		}
		return float64(n), nil
	}
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999999")
	default:
		return fmt.Sprint(x)
	}
}
