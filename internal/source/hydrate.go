package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"resource-cache/internal/metadata"
	"resource-cache/internal/store"
)

// Hydrate selects every row of the store's source table and injects it.
// Only the stored fields that exist as columns are read. It returns the
// number of entities injected.
func (d *DB) Hydrate(ctx context.Context, st *store.Store, log *zap.Logger) (int, error) {
	return d.hydrate(ctx, st, nil, log)
}

// Refresh re-reads the rows whose first unique key is in keys and injects
// them, replacing the cached entities in place.
func (d *DB) Refresh(ctx context.Context, st *store.Store, keys []any, log *zap.Logger) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return d.hydrate(ctx, st, keys, log)
}

// HydrateAll hydrates every store in the registry whose source table exists.
func (d *DB) HydrateAll(ctx context.Context, reg *store.Registry, log *zap.Logger) error {
	for _, name := range reg.Names() {
		st := reg.Get(name)
		exists, err := d.Dialect.TableExists(ctx, d.DB, tableName(st.Schema()))
		if err != nil {
			return errors.Wrapf(err, "check table for %s", name)
		}
		if !exists {
			log.Warn("source table missing, store left empty", zap.String("store", name), zap.String("table", tableName(st.Schema())))
			continue
		}
		if _, err := d.Hydrate(ctx, st, log); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) hydrate(ctx context.Context, st *store.Store, keys []any, log *zap.Logger) (int, error) {
	schema := st.Schema()
	table := tableName(schema)

	columns, err := d.Dialect.GetColumns(ctx, d.DB, table)
	if err != nil {
		return 0, errors.Wrapf(err, "read columns of %s", table)
	}

	var selected, boolFields []string
	for _, name := range schema.StoredFields() {
		if _, ok := columns[name]; !ok {
			continue
		}
		selected = append(selected, name)
		if f := schema.GetField(name); f != nil && f.Kind == metadata.KindBoolean {
			boolFields = append(boolFields, name)
		}
	}
	for _, k := range schema.Keys() {
		if _, ok := columns[k]; !ok {
			return 0, errors.Newf("table %s has no column for unique key %s", table, k)
		}
	}

	quoted := make([]string, len(selected))
	for i, c := range selected {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))

	pb := d.Dialect.NewParamBuilder()
	if keys != nil {
		query += " WHERE " + d.Dialect.InExpr(quoteIdent(schema.Keys()[0]), pb, keys)
	}

	rows, err := QueryRows(ctx, d.DB, query, pb.Params()...)
	if err != nil {
		return 0, errors.Wrapf(err, "hydrate %s", st.Name())
	}
	if d.Dialect.NeedsBoolFix() {
		NormalizeBooleans(rows, boolFields)
	}

	records := make([]store.Record, len(rows))
	for i, row := range rows {
		records[i] = store.Record(row)
	}
	if _, err := st.Inject(records...); err != nil {
		return 0, errors.Wrapf(err, "hydrate %s", st.Name())
	}

	log.Info("hydrated store", zap.String("store", st.Name()), zap.String("table", table), zap.Int("count", len(records)))
	return len(records), nil
}
