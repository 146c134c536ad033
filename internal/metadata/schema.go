package metadata

import (
	"github.com/cockroachdb/errors"
)

// DefaultUniqueKey is used when a schema declares no unique keys.
const DefaultUniqueKey = "id"

type Schema struct {
	Name       string   `json:"name" yaml:"name"`
	Table      string   `json:"table,omitempty" yaml:"table,omitempty"` // source table for hydration
	UniqueKeys []string `json:"unique_keys,omitempty" yaml:"unique_keys,omitempty"`
	Fields     []Field  `json:"fields" yaml:"fields"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (s *Schema) GetField(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the schema declares a field with the given name.
func (s *Schema) HasField(name string) bool {
	return s.GetField(name) != nil
}

// FieldNames returns all field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Keys returns the unique-key fields, defaulting to a single "id".
func (s *Schema) Keys() []string {
	if len(s.UniqueKeys) == 0 {
		return []string{DefaultUniqueKey}
	}
	return s.UniqueKeys
}

// IsKey returns true if name is one of the unique-key fields.
func (s *Schema) IsKey(name string) bool {
	for _, k := range s.Keys() {
		if k == name {
			return true
		}
	}
	return false
}

// StoredFields returns the names of the fields materialized as data: every
// primitive field plus any unique key the schema leaves undeclared.
func (s *Schema) StoredFields() []string {
	var names []string
	for _, k := range s.Keys() {
		if !s.HasField(k) {
			names = append(names, k)
		}
	}
	for _, f := range s.Fields {
		if f.IsPrimitive() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Relations returns the relation fields of the schema.
func (s *Schema) Relations() []Field {
	var fields []Field
	for _, f := range s.Fields {
		if f.Kind == KindRelation {
			fields = append(fields, f)
		}
	}
	return fields
}

// Clone returns a deep copy so a store can own its schema.
func (s *Schema) Clone() *Schema {
	c := *s
	c.UniqueKeys = append([]string(nil), s.UniqueKeys...)
	c.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		if f.Relation != nil {
			rel := *f.Relation
			f.Relation = &rel
		}
		c.Fields[i] = f
	}
	return &c
}

// Validate checks the schema once, before a store is built on it.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("schema name is required")
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return errors.Newf("%s: field name is required", s.Name)
		}
		if seen[f.Name] {
			return errors.Newf("%s.%s: duplicate field", s.Name, f.Name)
		}
		seen[f.Name] = true

		if !f.Kind.valid() {
			return errors.Newf("%s.%s: unknown field kind %q", s.Name, f.Name, f.Kind)
		}

		switch f.Kind {
		case KindComputed:
			if f.Compute == nil && f.Expression == "" {
				return errors.Newf("%s.%s: computed field needs a compute function or expression", s.Name, f.Name)
			}
		case KindRelation:
			if err := validateRelation(f.Relation); err != nil {
				return errors.Wrapf(err, "%s.%s", s.Name, f.Name)
			}
		}
	}

	keys := make(map[string]bool)
	for _, k := range s.Keys() {
		if k == "" {
			return errors.Newf("%s: empty unique key", s.Name)
		}
		if keys[k] {
			return errors.Newf("%s: duplicate unique key %s", s.Name, k)
		}
		keys[k] = true

		f := s.GetField(k)
		if f != nil && f.Kind != KindNumber && f.Kind != KindString {
			return errors.Newf("%s.%s: unique key must be a number or string field, got %s", s.Name, k, f.Kind)
		}
	}
	return nil
}

func validateRelation(rel *Relation) error {
	if rel == nil {
		return errors.New("relation field needs a relation definition")
	}
	if !rel.Shape.valid() {
		return errors.Newf("unknown relation shape %q", rel.Shape)
	}
	if rel.Target == "" {
		return errors.New("relation target is required")
	}
	if rel.IsBelongsTo() && rel.SourceProperty == "" {
		return errors.Newf("%s relation needs source_property", rel.Shape)
	}
	if !rel.IsBelongsTo() && rel.TargetProperty == "" {
		return errors.Newf("%s relation needs target_property", rel.Shape)
	}
	return nil
}
