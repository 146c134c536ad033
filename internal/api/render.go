package api

import (
	"math"

	"resource-cache/internal/metadata"
	"resource-cache/internal/store"
)

func renderAll(entities []*store.Entity, includes []string) ([]map[string]any, error) {
	out := make([]map[string]any, len(entities))
	for i, e := range entities {
		row, err := render(e, includes)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// render flattens an entity into its stored and computed fields plus the
// requested relation fields. Unknown include names are ignored.
func render(e *store.Entity, includes []string) (map[string]any, error) {
	row, err := fields(e)
	if err != nil {
		return nil, err
	}

	schema := e.Store().Schema()
	for _, name := range includes {
		f := schema.GetField(name)
		if f == nil || f.Kind != metadata.KindRelation {
			continue
		}
		v, err := e.Get(name)
		if err != nil {
			return nil, err
		}
		switch related := v.(type) {
		case *store.Entity:
			if row[name], err = fields(related); err != nil {
				return nil, err
			}
		case []*store.Entity:
			if row[name], err = renderAll(related, nil); err != nil {
				return nil, err
			}
		default:
			row[name] = nil
		}
	}
	return row, nil
}

func fields(e *store.Entity) (map[string]any, error) {
	row := e.Values()
	for k, v := range row {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			row[k] = nil
		}
	}
	for _, f := range e.Store().Schema().Fields {
		if f.Kind != metadata.KindComputed {
			continue
		}
		v, err := e.Get(f.Name)
		if err != nil {
			return nil, err
		}
		row[f.Name] = v
	}
	return row, nil
}
