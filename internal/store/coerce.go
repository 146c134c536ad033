package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"resource-cache/internal/metadata"
)

// coerceValue converts a present, non-nil input value to the Go type used
// for the field kind. nil passes through unchanged.
func coerceValue(kind metadata.FieldKind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case metadata.KindNumber:
		return toNumber(v)
	case metadata.KindString:
		return toString(v)
	case metadata.KindBoolean:
		return toBoolean(v)
	case metadata.KindDate:
		return toDate(v)
	default:
		return v
	}
}

// toNumber mirrors Number(): booleans become 0/1, blank strings 0, dates
// their millisecond timestamp and anything unparsable NaN.
func toNumber(v any) float64 {
	switch val := v.(type) {
	case time.Time:
		return float64(val.UnixMilli())
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0
		}
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return math.NaN()
	}
	return f
}

func toString(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// toBoolean mirrors Boolean() truthiness.
func toBoolean(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case time.Time:
		return true
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// toDate accepts time values, timestamp strings and millisecond numbers.
// Unparsable input yields the zero time.
func toDate(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case *time.Time:
		if val == nil {
			return time.Time{}
		}
		return *val
	case string:
		t, err := cast.ToTimeE(val)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return time.Time{}
	}
	return time.UnixMilli(int64(f)).UTC()
}
