package store

import (
	"resource-cache/internal/engine"
	"resource-cache/internal/metadata"
)

// resolve reads a relation field of e. The related store is looked up by
// name on every read, so stores may be built in any order.
func (s *Store) resolve(e *Entity, field metadata.Field) (any, error) {
	rel := field.Relation
	target := s.relations.Get(rel.Target)
	if target == nil {
		return nil, engine.UnknownRelatedStoreError(s.name, rel.Target)
	}

	switch rel.Shape {
	case metadata.BelongsToOne:
		ref := e.Value(rel.SourceProperty)
		if metadata.IsNil(ref) {
			return nil, nil
		}
		if related := target.FindByID(ref); related != nil {
			return related, nil
		}
		return nil, nil

	case metadata.BelongsToMany:
		refs, ok := engine.AsList(e.Value(rel.SourceProperty))
		if !ok || len(refs) == 0 {
			return []*Entity{}, nil
		}
		// Composite-key targets are matched on their first key only.
		return target.FindAll(engine.Where{target.keys[0]: engine.Ops{engine.OpIn: refs}})

	case metadata.HasOne:
		related, err := target.FindOne(engine.Where{rel.TargetProperty: e.ID()})
		if err != nil || related == nil {
			return nil, err
		}
		return related, nil

	case metadata.HasMany:
		return target.FindAll(engine.Where{rel.TargetProperty: e.ID()})
	}
	return nil, nil
}
