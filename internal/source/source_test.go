package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"resource-cache/internal/config"
	"resource-cache/internal/engine"
	"resource-cache/internal/metadata"
	"resource-cache/internal/store"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func exec(t *testing.T, db *DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := db.DB.Exec(s)
		require.NoError(t, err, s)
	}
}

func userSchema() *metadata.Schema {
	return &metadata.Schema{
		Name:  "user",
		Table: "users",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindNumber},
			{Name: "email", Kind: metadata.KindString},
			{Name: "admin", Kind: metadata.KindBoolean},
			{Name: "joined", Kind: metadata.KindDate},
			{Name: "nickname", Kind: metadata.KindString},
		},
	}
}

func seedUsers(t *testing.T, db *DB) {
	exec(t, db,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT, admin BOOLEAN, joined TEXT, secret TEXT)`,
		`INSERT INTO users VALUES (1, 'a@x.io', 1, '2024-01-02 03:04:05', 's1')`,
		`INSERT INTO users VALUES (2, 'b@x.io', 0, '2024-02-03 04:05:06', 's2')`,
		`INSERT INTO users VALUES (3, NULL, 0, NULL, 's3')`,
	)
}

func TestHydrate(t *testing.T) {
	db := openMemory(t)
	seedUsers(t, db)

	st, err := store.New(store.NewRegistry(), userSchema())
	require.NoError(t, err)

	n, err := db.Hydrate(context.Background(), st, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	a := st.FindByID(1)
	require.NotNil(t, a)
	assert.Equal(t, "a@x.io", a.Value("email"))
	assert.Equal(t, true, a.Value("admin"))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), a.Value("joined").(time.Time).UTC())
	// columns the schema doesn't know and fields the table lacks
	assert.Equal(t, metadata.Undefined, a.Value("secret"))
	assert.Equal(t, metadata.Undefined, a.Value("nickname"))

	assert.Nil(t, st.FindByID(3).Value("email"))

	admins, err := st.FindAll(engine.Where{"admin": true})
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestRefresh(t *testing.T) {
	db := openMemory(t)
	seedUsers(t, db)

	st, err := store.New(store.NewRegistry(), userSchema())
	require.NoError(t, err)
	_, err = db.Hydrate(context.Background(), st, zap.NewNop())
	require.NoError(t, err)

	exec(t, db,
		`UPDATE users SET email = 'new@x.io'`,
	)
	n, err := db.Refresh(context.Background(), st, []any{2, 3}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, "a@x.io", st.FindByID(1).Value("email"))
	assert.Equal(t, "new@x.io", st.FindByID(2).Value("email"))
	assert.Equal(t, 3, st.Len())
}

func TestHydrateAll_SkipsMissingTables(t *testing.T) {
	db := openMemory(t)
	seedUsers(t, db)

	reg := store.NewRegistry()
	_, err := store.New(reg, userSchema())
	require.NoError(t, err)
	orders, err := store.New(reg, &metadata.Schema{Name: "order"})
	require.NoError(t, err)

	require.NoError(t, db.HydrateAll(context.Background(), reg, zap.NewNop()))
	assert.Equal(t, 3, reg.Get("user").Len())
	assert.Equal(t, 0, orders.Len())
}

func TestHydrate_MissingKeyColumn(t *testing.T) {
	db := openMemory(t)
	exec(t, db, `CREATE TABLE tags (label TEXT)`)

	st, err := store.New(store.NewRegistry(), &metadata.Schema{Name: "tag", Table: "tags"})
	require.NoError(t, err)
	_, err = db.Hydrate(context.Background(), st, zap.NewNop())
	assert.Error(t, err)
}

func TestSaveSchema_LoadAll(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, db.Bootstrap(ctx))

	require.NoError(t, db.SaveSchema(ctx, userSchema()))
	require.NoError(t, db.SaveSchema(ctx, userSchema()))
	exec(t, db, `INSERT INTO _entities (name, table_name, definition) VALUES ('broken', 'broken', '{not json')`)

	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadAll(ctx, db.DB, reg, zap.NewNop()))

	assert.Equal(t, 1, reg.Len())
	s := reg.Get("user")
	require.NotNil(t, s)
	assert.Equal(t, "users", s.Table)
	assert.Len(t, s.Fields, 5)
}
