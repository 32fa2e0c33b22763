package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ValueType is the coarse type checked by TypeOf rules
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeArray   ValueType = "array"
	TypeObject  ValueType = "object"
	TypeTime    ValueType = "time"
	TypeNull    ValueType = "null"
)

// Normalize converts numeric values to float64 so that equal numbers
// compare, index and validate identically regardless of their Go type.
func Normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

// NormalizeFields returns a copy of data with every top-level value normalized
func NormalizeFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = Normalize(v)
	}
	return out
}

// TypeOfValue reports the ValueType of v
func TypeOfValue(v any) ValueType {
	switch Normalize(v).(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case float64:
		return TypeNumber
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeTime
	case []any, []string, []float64, []int, []map[string]any:
		return TypeArray
	case map[string]any:
		return TypeObject
	}
	return TypeObject
}

// IndexKey renders v as a canonical string. Two values share a key iff
// they are equal for filtering and indexing purposes.
func IndexKey(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return "z:"
	case string:
		return "s:" + x
	case float64:
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return "j:?"
		}
		return "j:" + string(data)
	}
}

// Equal reports whether a and b are equal for filtering purposes
func Equal(a, b any) bool {
	return IndexKey(a) == IndexKey(b)
}

// Compare orders two values: nil first, then numbers, strings, booleans
// and times by natural order. Values of different types order by type.
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case nil:
		return 0
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	return strings.Compare(IndexKey(a), IndexKey(b))
}

func typeOrder(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case time.Time:
		return 4
	}
	return 5
}
