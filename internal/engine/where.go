package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"resource-cache/internal/metadata"
)

// Where maps field names to a condition: either a literal, matched by
// strict equality, or an Ops object.
type Where map[string]any

// Ops maps an operator to its operand, e.g. Ops{">=": 26}.
type Ops map[string]any

const (
	OpEq      = "==="
	OpNeq     = "!=="
	OpIn      = "in"
	OpNotIn   = "!in"
	OpLike    = "like"
	OpNotLike = "!like"

	OpGte = ">="
	OpGt  = ">"
	OpLte = "<="
	OpLt  = "<"

	OpClosed        = "[]"
	OpNotClosed     = "![]"
	OpClosedOpen    = "[)"
	OpNotClosedOpen = "![)"
	OpOpenClosed    = "(]"
	OpNotOpenClosed = "!(]"
	OpOpen          = "()"
	OpNotOpen       = "!()"
)

// Operators lists every operator token the filter engine understands.
var Operators = []string{
	OpEq, OpNeq, OpIn, OpNotIn, OpLike, OpNotLike,
	OpGte, OpGt, OpLte, OpLt,
	OpClosed, OpNotClosed, OpClosedOpen, OpNotClosedOpen,
	OpOpenClosed, OpNotOpenClosed, OpOpen, OpNotOpen,
}

// IsOperator returns true if op is a known operator token.
func IsOperator(op string) bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

func opsOf(cond any) (Ops, bool) {
	switch c := cond.(type) {
	case Ops:
		return c, true
	case map[string]any:
		return Ops(c), true
	}
	return nil, false
}

// AsList turns any slice or array into []any. Strings are not lists.
func AsList(v any) ([]any, bool) {
	return asList(v)
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case nil:
		return nil, false
	case []any:
		return l, true
	case string:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toMillis(v any) (float64, bool) {
	switch t := v.(type) {
	case time.Time:
		return float64(t.UnixMilli()), true
	case *time.Time:
		if t == nil {
			return 0, false
		}
		return float64(t.UnixMilli()), true
	}
	return 0, false
}

// ToFloat64 converts any Go numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	return toFloat(v)
}

// IsNumber returns true for any Go numeric value.
func IsNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

// nilAware compares two values when at least one of them is nil or
// Undefined. nil and Undefined only match themselves.
func nilAware(a, b any) (equal bool, handled bool) {
	if metadata.IsNil(a) || metadata.IsNil(b) {
		return a == b, true
	}
	return false, false
}
