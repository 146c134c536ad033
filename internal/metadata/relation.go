package metadata

type RelationShape string

const (
	BelongsToOne  RelationShape = "belongs_to_one"
	BelongsToMany RelationShape = "belongs_to_many"
	HasOne        RelationShape = "has_one"
	HasMany       RelationShape = "has_many"
)

// Relation describes how a relation field is joined against another store.
//
// Belongs-to shapes read the target key(s) from SourceProperty on the source
// entity. Has shapes look up target entities whose TargetProperty holds the
// source entity's id.
type Relation struct {
	Shape          RelationShape `json:"shape" yaml:"shape"`
	Target         string        `json:"target" yaml:"target"`
	SourceProperty string        `json:"source_property,omitempty" yaml:"source_property,omitempty"`
	TargetProperty string        `json:"target_property,omitempty" yaml:"target_property,omitempty"`
}

func (r *Relation) IsBelongsTo() bool {
	return r.Shape == BelongsToOne || r.Shape == BelongsToMany
}

// IsMany returns true if the relation resolves to a list of entities.
func (r *Relation) IsMany() bool {
	return r.Shape == BelongsToMany || r.Shape == HasMany
}

// Property returns the join property: the source property for belongs-to
// shapes, the target property otherwise.
func (r *Relation) Property() string {
	if r.IsBelongsTo() {
		return r.SourceProperty
	}
	return r.TargetProperty
}

func (s RelationShape) valid() bool {
	switch s {
	case BelongsToOne, BelongsToMany, HasOne, HasMany:
		return true
	}
	return false
}
