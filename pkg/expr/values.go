package expr

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Kind classifies a runtime value for function dispatch.
type Kind string

// Value kinds.
const (
	KindText     Kind = "text"
	KindMapping  Kind = "mapping"
	KindSequence Kind = "sequence"
	KindNumber   Kind = "number"
	KindBool     Kind = "boolean"
	KindNull     Kind = "null"
	KindOther    Kind = "unknown"
)

// KindOf returns the kind of v.
func KindOf(v any) Kind {
	if v == nil {
		return KindNull
	}
	switch v.(type) {
	case string:
		return KindText
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	}
	if _, ok := AsMap(v); ok {
		return KindMapping
	}
	if _, ok := AsList(v); ok {
		return KindSequence
	}
	return KindOther
}

// AsMap returns v as a map[string]any. Maps with string keys of any value
// type are converted.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// AsList returns v as a []any. Slices and arrays of any element type are
// converted; byte slices are not treated as sequences.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []byte:
		return nil, false
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Stringify renders v for splicing into surrounding text. Mappings and
// sequences are rendered as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	}
	switch KindOf(v) {
	case KindMapping, KindSequence:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// Equal compares two values, treating numbers of different Go types as equal
// when they hold the same value.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	la, aIsList := AsList(a)
	lb, bIsList := AsList(b)
	if aIsList && bIsList {
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	ma, aIsMap := AsMap(a)
	mb, bIsMap := AsMap(b)
	if aIsMap && bIsMap {
		if len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ToInt converts integral numbers to int.
func ToInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
