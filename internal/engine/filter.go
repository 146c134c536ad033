package engine

import (
	"regexp"
	"sort"

	"resource-cache/internal/metadata"
)

// FilterByCondition returns true if the entity satisfies every field
// condition in where.
func FilterByCondition(schema *metadata.Schema, entity metadata.Accessor, where Where) (bool, error) {
	if where == nil {
		return false, MissingConditionError()
	}
	if len(where) == 0 {
		return false, EmptyConditionError()
	}

	fields := make([]string, 0, len(where))
	for f := range where {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		kind, err := declaredKind(schema, field)
		if err != nil {
			return false, err
		}
		value, err := entity.Get(field)
		if err != nil {
			return false, err
		}
		if kind == "" {
			if kind, err = keyKind(field, value); err != nil {
				return false, err
			}
		}

		cond := where[field]
		var ok bool
		switch kind {
		case metadata.KindBoolean:
			ok = matchBoolean(value, cond)
		case metadata.KindDate:
			ok, err = matchDate(field, value, cond)
		case metadata.KindNumber:
			ok, err = matchNumber(field, value, cond)
		case metadata.KindString:
			ok, err = matchString(field, value, cond)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// declaredKind rejects non-comparable fields before any value is read. It
// returns an empty kind for undeclared unique keys.
func declaredKind(schema *metadata.Schema, field string) (metadata.FieldKind, error) {
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

// keyKind matches undeclared unique keys by their runtime type.
func keyKind(field string, value any) (metadata.FieldKind, error) {
	if _, ok := value.(string); ok {
		return metadata.KindString, nil
	}
	if IsNumber(value) {
		return metadata.KindNumber, nil
	}
	return "", UnsupportedFieldKindError(field, "undeclared")
}

func matchBoolean(value, cond any) bool {
	ops, isOps := opsOf(cond)
	if !isOps {
		return boolEqual(value, cond)
	}
	if v, ok := ops[OpEq]; ok {
		return boolEqual(value, v)
	}
	if v, ok := ops[OpNeq]; ok {
		return !boolEqual(value, v)
	}
	return false
}

func matchNumber(field string, value, cond any) (bool, error) {
	ops, isOps := opsOf(cond)
	if !isOps {
		return numberEqual(value, cond), nil
	}
	if matched, handled := matchEquality(ops, value, numberEqual); handled {
		return matched, nil
	}
	return matchRange(field, ops, value, toFloat)
}

func matchDate(field string, value, cond any) (bool, error) {
	ops, isOps := opsOf(cond)
	if !isOps {
		return dateEqual(value, cond), nil
	}
	if matched, handled := matchEquality(ops, value, dateEqual); handled {
		return matched, nil
	}
	return matchRange(field, ops, value, toMillis)
}

func matchString(field string, value, cond any) (bool, error) {
	ops, isOps := opsOf(cond)
	if !isOps {
		return stringEqual(value, cond), nil
	}
	if matched, handled := matchEquality(ops, value, stringEqual); handled {
		return matched, nil
	}
	if p, ok := ops[OpLike]; ok {
		return matchLike(field, OpLike, value, p, false)
	}
	if p, ok := ops[OpNotLike]; ok {
		return matchLike(field, OpNotLike, value, p, true)
	}
	return false, nil
}

// matchEquality evaluates in, !in, === and !== in that order. handled is
// false when none of them is present.
func matchEquality(ops Ops, value any, equal func(a, b any) bool) (matched bool, handled bool) {
	if raw, ok := ops[OpIn]; ok {
		list, ok := asList(raw)
		if !ok || len(list) == 0 {
			return false, true
		}
		return contains(list, value, equal), true
	}
	if raw, ok := ops[OpNotIn]; ok {
		list, ok := asList(raw)
		if !ok || len(list) == 0 {
			return false, true
		}
		return !contains(list, value, equal), true
	}
	if v, ok := ops[OpEq]; ok {
		return equal(value, v), true
	}
	if v, ok := ops[OpNeq]; ok {
		return !equal(value, v), true
	}
	return false, false
}

func contains(list []any, value any, equal func(a, b any) bool) bool {
	for _, candidate := range list {
		if equal(value, candidate) {
			return true
		}
	}
	return false
}

func matchLike(field, op string, value, pattern any, negate bool) (bool, error) {
	if metadata.IsNil(pattern) || metadata.IsNil(value) {
		return false, nil
	}
	s, ok := value.(string)
	if !ok {
		return false, nil
	}

	var rgx *regexp.Regexp
	switch p := pattern.(type) {
	case *regexp.Regexp:
		if p == nil {
			return false, nil
		}
		rgx = p
	case string:
		compiled, err := regexp.Compile(p)
		if err != nil {
			return false, InvalidConditionError(field, op, err.Error())
		}
		rgx = compiled
	default:
		return false, nil
	}

	matched := rgx.MatchString(s)
	if negate {
		return !matched, nil
	}
	return matched, nil
}

type singleBound struct {
	op   string
	test func(v, bound float64) bool
}

var singleBounds = []singleBound{
	{OpGte, func(v, b float64) bool { return v >= b }},
	{OpGt, func(v, b float64) bool { return v > b }},
	{OpLte, func(v, b float64) bool { return v <= b }},
	{OpLt, func(v, b float64) bool { return v < b }},
}

type interval struct {
	op            string
	lowInclusive  bool
	highInclusive bool
	negate        bool
}

var intervals = []interval{
	{OpClosed, true, true, false},
	{OpNotClosed, true, true, true},
	{OpClosedOpen, true, false, false},
	{OpNotClosedOpen, true, false, true},
	{OpOpenClosed, false, true, false},
	{OpNotOpenClosed, false, true, true},
	{OpOpen, false, false, false},
	{OpNotOpen, false, false, true},
}

// matchRange evaluates the range operators. A nil or non-comparable entity
// value is never inside a range, so negated ranges match it.
func matchRange(field string, ops Ops, value any, ordinal func(any) (float64, bool)) (bool, error) {
	for _, sb := range singleBounds {
		raw, ok := ops[sb.op]
		if !ok {
			continue
		}
		if metadata.IsNil(raw) {
			return false, NilRangeBoundError(sb.op)
		}
		bound, ok := ordinal(raw)
		if !ok {
			return false, InvalidConditionError(field, sb.op, "bound has the wrong type")
		}
		v, ok := ordinal(value)
		if !ok {
			return false, nil
		}
		return sb.test(v, bound), nil
	}

	for _, iv := range intervals {
		raw, ok := ops[iv.op]
		if !ok {
			continue
		}
		list, ok := asList(raw)
		if !ok || len(list) == 0 {
			return false, nil
		}
		if len(list) < 2 || metadata.IsNil(list[0]) || metadata.IsNil(list[1]) {
			return false, NilRangeBoundError(iv.op)
		}
		low, okLow := ordinal(list[0])
		high, okHigh := ordinal(list[1])
		if !okLow || !okHigh {
			return false, InvalidConditionError(field, iv.op, "bounds have the wrong type")
		}

		inside := false
		if v, ok := ordinal(value); ok {
			aboveLow := v > low || (iv.lowInclusive && v == low)
			belowHigh := v < high || (iv.highInclusive && v == high)
			inside = aboveLow && belowHigh
		}
		if iv.negate {
			return !inside, nil
		}
		return inside, nil
	}

	return false, nil
}

func numberEqual(a, b any) bool {
	if eq, handled := nilAware(a, b); handled {
		return eq
	}
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	return okA && okB && x == y
}

func dateEqual(a, b any) bool {
	if eq, handled := nilAware(a, b); handled {
		return eq
	}
	x, okA := toMillis(a)
	y, okB := toMillis(b)
	return okA && okB && x == y
}

func stringEqual(a, b any) bool {
	if eq, handled := nilAware(a, b); handled {
		return eq
	}
	x, okA := a.(string)
	y, okB := b.(string)
	return okA && okB && x == y
}

func boolEqual(a, b any) bool {
	if eq, handled := nilAware(a, b); handled {
		return eq
	}
	x, okA := a.(bool)
	y, okB := b.(bool)
	return okA && okB && x == y
}
