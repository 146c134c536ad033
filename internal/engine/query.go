package engine

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"resource-cache/internal/metadata"
)

var opAliases = map[string]string{
	"eq":       OpEq,
	"neq":      OpNeq,
	"gt":       OpGt,
	"gte":      OpGte,
	"lt":       OpLt,
	"lte":      OpLte,
	"in":       OpIn,
	"not_in":   OpNotIn,
	"like":     OpLike,
	"not_like": OpNotLike,
	"between":  OpClosed,
}

// ParseFilterParams turns query parameters of the form filter[field]=val or
// filter[field.op]=val into a Where condition. Values are coerced by the
// field's kind. It returns nil when no filter parameter is present.
func ParseFilterParams(queries map[string]string, schema *metadata.Schema) (Where, error) {
	var where Where
	for key, val := range queries {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1] // extract between [ and ]
		field, op := parseFilterKey(inner)

		kind, err := filterKind(schema, field)
		if err != nil {
			return nil, err
		}

		canonical, ok := canonicalOp(op)
		if !ok {
			return nil, InvalidConditionError(field, op, "unknown operator")
		}

		coerced, err := coerceParam(kind, val, canonical)
		if err != nil {
			return nil, InvalidConditionError(field, canonical, err.Error())
		}

		if where == nil {
			where = Where{}
		}
		if _, dup := where[field]; dup {
			return nil, InvalidConditionError(field, canonical, "only one operator per field is allowed")
		}
		if canonical == OpEq {
			where[field] = coerced
		} else {
			where[field] = Ops{canonical: coerced}
		}
	}
	return where, nil
}

// ParseIncludes splits an include=a,b parameter into relation names.
func ParseIncludes(raw string) []string {
	if raw == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseFilterKey splits "total.gte" into ("total", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

func canonicalOp(op string) (string, bool) {
	if c, ok := opAliases[op]; ok {
		return c, true
	}
	if IsOperator(op) {
		return op, true
	}
	return "", false
}

func filterKind(schema *metadata.Schema, field string) (metadata.FieldKind, error) {
	if f := schema.GetField(field); f != nil {
		if !f.IsComparable() {
			return "", UnsupportedFieldKindError(field, f.Kind)
		}
		return f.Kind, nil
	}
	if schema.IsKey(field) {
		return "", nil
	}
	return "", UnsupportedFieldKindError(field, "undeclared")
}

func isListOp(op string) bool {
	switch op {
	case OpIn, OpNotIn, OpClosed, OpNotClosed, OpClosedOpen, OpNotClosedOpen,
		OpOpenClosed, OpNotOpenClosed, OpOpen, OpNotOpen:
		return true
	}
	return false
}

// coerceParam converts string query param values to the Go types the filter
// engine compares against.
func coerceParam(kind metadata.FieldKind, val string, op string) (any, error) {
	if isListOp(op) {
		parts := strings.Split(val, ",")
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleParam(kind, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	}
	if op == OpLike || op == OpNotLike {
		return val, nil
	}
	return coerceSingleParam(kind, val)
}

func coerceSingleParam(kind metadata.FieldKind, val string) (any, error) {
	if val == "null" {
		return nil, nil
	}
	switch kind {
	case metadata.KindNumber:
		return strconv.ParseFloat(val, 64)
	case metadata.KindBoolean:
		return strconv.ParseBool(val)
	case metadata.KindDate:
		return ParseTime(val)
	case metadata.KindString:
		return val, nil
	default:
		// Undeclared unique key: numeric when it parses as one.
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, nil
		}
		return val, nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses the timestamp layouts accepted in filters.
func ParseTime(val string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("cannot parse %q as a timestamp", val)
}
