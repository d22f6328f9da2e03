package dataset

import (
	"math"
	"reflect"
	"strconv"

	"github.com/ajitpratap0/datalab/pkg/json"
)

// FieldType is the logical type of a field value.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int64"
	TypeFloat  FieldType = "float64"
	TypeBool   FieldType = "bool"
	TypeList   FieldType = "list"
	TypeMap    FieldType = "map"
	TypeNull   FieldType = "null"
	// TypeMixed marks a field whose values disagree across records.
	TypeMixed FieldType = "mixed"
)

// NormalizeValue maps a Go value onto the small set of types records hold:
// string, int64, float64, bool, nil, []interface{} and map[string]interface{}.
// Integer kinds widen to int64, float32 widens to float64, nested records
// become maps and typed slices or maps are copied into their generic forms.
// Values of other types are returned unchanged.
func NormalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x
	case Record:
		return NormalizeValue(x.ToMap())
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			return f
		}
		return string(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = NormalizeValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = NormalizeValue(e)
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			// []byte stays binary
			return v
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = NormalizeValue(iter.Value().Interface())
		}
		return out
	}
	return v
}

// CloneValue deep-copies the lists and maps inside a normalized value.
// Scalars and records are returned as is.
func CloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = CloneValue(e)
		}
		return out
	}
	return v
}

// TypeOf returns the logical type of a normalized value.
func TypeOf(v interface{}) FieldType {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case bool:
		return TypeBool
	case []interface{}:
		return TypeList
	case map[string]interface{}:
		return TypeMap
	default:
		n := NormalizeValue(v)
		if reflect.TypeOf(n) == reflect.TypeOf(v) {
			return TypeMixed
		}
		return TypeOf(n)
	}
}
