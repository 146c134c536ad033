package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"resource-cache/internal/config"
	"resource-cache/internal/metadata"
)

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB wraps the connection to the database stores are hydrated from.
type DB struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open connects to the configured database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	dialect := NewDialect(driver)

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if dialect.Name() == "sqlite" {
		// one connection keeps an in-memory database alive and shared
		db.SetMaxOpenConns(1)
	} else if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping")
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.DB.Close()
}

// Bootstrap creates the _entities schema table if it is missing.
func (d *DB) Bootstrap(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, d.Dialect.SchemaTableSQL()); err != nil {
		return errors.Wrap(err, "create _entities")
	}
	return nil
}

// SaveSchema stores a schema definition in _entities, replacing any
// definition with the same name.
func (d *DB) SaveSchema(ctx context.Context, s *metadata.Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	def, err := json.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "encode schema %s", s.Name)
	}
	if _, err := d.DB.ExecContext(ctx, d.Dialect.UpsertSchemaSQL(), s.Name, tableName(s), string(def)); err != nil {
		return errors.Wrapf(err, "save schema %s", s.Name)
	}
	return nil
}

// QueryRows executes a query and returns results as []map[string]any.
func QueryRows(ctx context.Context, q Querier, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "get columns")
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan")
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows iteration")
	}
	return results, nil
}

// normalizeValue converts driver-specific types to plain Go values. Text
// timestamps stay strings; date fields are parsed when the store coerces
// them.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		// database/sql often returns []byte for TEXT columns
		return string(val)
	default:
		return val
	}
}

// NormalizeBooleans converts integer 0/1 values to bool for specified fields.
// This is needed for SQLite where BOOLEAN columns are stored as INTEGER.
func NormalizeBooleans(rows []map[string]any, boolFields []string) {
	if len(boolFields) == 0 || len(rows) == 0 {
		return
	}
	boolSet := make(map[string]bool, len(boolFields))
	for _, f := range boolFields {
		boolSet[f] = true
	}
	for _, row := range rows {
		for k, v := range row {
			if !boolSet[k] {
				continue
			}
			switch val := v.(type) {
			case int64:
				row[k] = val != 0
			case float64:
				row[k] = val != 0
			}
		}
	}
}

func tableName(s *metadata.Schema) string {
	if s.Table != "" {
		return s.Table
	}
	return s.Name
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
