package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Document is the top-level shape of a schema definition file.
type Document struct {
	Entities []*Schema `yaml:"entities" json:"entities"`
}

// LoadFile reads schema definitions from a YAML (or JSON) file and validates
// each of them.
func LoadFile(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema file %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a schema document.
func Parse(data []byte) ([]*Schema, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode schema document")
	}
	for _, s := range doc.Entities {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Entities, nil
}

// LoadAll reads schema definitions from the _entities table and merges them
// into the registry. Rows holding invalid definitions are skipped.
func LoadAll(ctx context.Context, db *sql.DB, reg *Registry, log *zap.Logger) error {
	schemas, err := loadSchemas(ctx, db, log)
	if err != nil {
		return errors.Wrap(err, "load entities")
	}

	reg.Load(schemas)

	log.Info("loaded schemas into registry", zap.Int("count", len(schemas)))
	return nil
}

func loadSchemas(ctx context.Context, db *sql.DB, log *zap.Logger) ([]*Schema, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, definition FROM _entities ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []*Schema
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, errors.Wrap(err, "scan entity row")
		}

		var s Schema
		if err := json.Unmarshal(defJSON, &s); err != nil {
			log.Warn("skipping entity with invalid JSON", zap.String("entity", name), zap.Error(err))
			continue
		}
		if s.Name == "" {
			s.Name = name
		}
		if err := s.Validate(); err != nil {
			log.Warn("skipping invalid entity definition", zap.String("entity", name), zap.Error(err))
			continue
		}
		schemas = append(schemas, &s)
	}
	return schemas, rows.Err()
}
