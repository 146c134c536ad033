package store

import (
	"encoding/json"
	"math"

	"resource-cache/internal/metadata"
)

// Record is a loosely-typed input payload handed to Inject.
type Record map[string]any

// Entity is a materialized, schema-shaped record owned by a Store. Only
// primitive fields are held as data; computed and relation fields are
// evaluated on every Get.
type Entity struct {
	store  *Store
	values map[string]any
	key    string
}

var _ metadata.Accessor = (*Entity)(nil)

// Store returns the store the entity was materialized by.
func (e *Entity) Store() *Store {
	return e.store
}

// Get returns the value of any schema field. Stored fields return their
// coerced value, nil, or metadata.Undefined when the input omitted them.
// Computed fields are recomputed and relation fields re-queried on every
// call. Fields outside the schema read as metadata.Undefined.
func (e *Entity) Get(field string) (any, error) {
	sl, ok := e.store.slots[field]
	if !ok {
		return metadata.Undefined, nil
	}
	switch sl.kind {
	case slotDerived:
		return sl.compute(e)
	case slotRelated:
		return e.store.resolve(e, sl.field)
	default:
		return e.Value(field), nil
	}
}

// Value returns a stored field without evaluating computed or relation
// fields.
func (e *Entity) Value(field string) any {
	v, ok := e.values[field]
	if !ok {
		return metadata.Undefined
	}
	return v
}

// Values returns a copy of the stored fields that were present on ingest.
func (e *Entity) Values() map[string]any {
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// ID returns the value of the first unique-key field.
func (e *Entity) ID() any {
	return e.Value(e.store.keys[0])
}

// Key returns the unique-key tuple in key order.
func (e *Entity) Key() []any {
	key := make([]any, len(e.store.keys))
	for i, k := range e.store.keys {
		key[i] = e.Value(k)
	}
	return key
}

// One reads a to-one relation field.
func (e *Entity) One(field string) (*Entity, error) {
	v, err := e.Get(field)
	if err != nil {
		return nil, err
	}
	related, _ := v.(*Entity)
	return related, nil
}

// Many reads a to-many relation field.
func (e *Entity) Many(field string) ([]*Entity, error) {
	v, err := e.Get(field)
	if err != nil {
		return nil, err
	}
	related, _ := v.([]*Entity)
	if related == nil {
		related = []*Entity{}
	}
	return related, nil
}

// MarshalJSON encodes the stored fields. Computed and relation fields are
// not part of the encoding.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.values))
	for k, v := range e.values {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}
