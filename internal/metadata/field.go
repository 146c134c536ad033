package metadata

type FieldKind string

const (
	KindNumber   FieldKind = "number"
	KindString   FieldKind = "string"
	KindBoolean  FieldKind = "boolean"
	KindDate     FieldKind = "date"
	KindObject   FieldKind = "object"
	KindComputed FieldKind = "computed"
	KindRelation FieldKind = "relation"
)

// Accessor is the read view of a materialized entity handed to compute
// functions and the filter engine.
type Accessor interface {
	// Get returns the current value of a field. Computed and relation
	// fields are evaluated on every call.
	Get(field string) (any, error)
	// Values returns the stored (primitive) fields that were present on
	// ingest, keyed by field name.
	Values() map[string]any
}

// ComputeFunc derives a computed field from the entity it belongs to.
type ComputeFunc func(entity Accessor) (any, error)

type Field struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       FieldKind   `json:"kind" yaml:"kind"`
	Required   bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Expression string      `json:"expression,omitempty" yaml:"expression,omitempty"` // computed only
	Relation   *Relation   `json:"relation,omitempty" yaml:"relation,omitempty"`
	Compute    ComputeFunc `json:"-" yaml:"-"`
}

// IsPrimitive returns true for kinds that are stored on the entity.
func (f Field) IsPrimitive() bool {
	switch f.Kind {
	case KindNumber, KindString, KindBoolean, KindDate, KindObject:
		return true
	}
	return false
}

// IsComparable returns true for kinds the filter engine can match on.
func (f Field) IsComparable() bool {
	switch f.Kind {
	case KindNumber, KindString, KindBoolean, KindDate:
		return true
	}
	return false
}

func (k FieldKind) valid() bool {
	switch k {
	case KindNumber, KindString, KindBoolean, KindDate, KindObject, KindComputed, KindRelation:
		return true
	}
	return false
}
