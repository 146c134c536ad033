package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-cache/internal/engine"
	"resource-cache/internal/metadata"
)

func relationField(name string, shape metadata.RelationShape, target, source, targetProp string) metadata.Field {
	return metadata.Field{
		Name: name,
		Kind: metadata.KindRelation,
		Relation: &metadata.Relation{
			Shape:          shape,
			Target:         target,
			SourceProperty: source,
			TargetProperty: targetProp,
		},
	}
}

// newLibrary builds authors, books and profiles wired with all four
// relation shapes.
func newLibrary(t *testing.T) (authors, books, profiles *Store) {
	t.Helper()
	reg := NewRegistry()

	authors, err := New(reg, &metadata.Schema{
		Name: "author",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindNumber},
			{Name: "name", Kind: metadata.KindString},
			{Name: "favorite_ids", Kind: metadata.KindObject},
			relationField("books", metadata.HasMany, "book", "", "author_id"),
			relationField("profile", metadata.HasOne, "profile", "", "author_id"),
			relationField("favorites", metadata.BelongsToMany, "book", "favorite_ids", ""),
		},
	})
	require.NoError(t, err)

	books, err = New(reg, &metadata.Schema{
		Name: "book",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindNumber},
			{Name: "title", Kind: metadata.KindString},
			{Name: "author_id", Kind: metadata.KindNumber},
			relationField("author", metadata.BelongsToOne, "author", "author_id", ""),
		},
	})
	require.NoError(t, err)

	profiles, err = New(reg, &metadata.Schema{
		Name: "profile",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindString},
			{Name: "author_id", Kind: metadata.KindNumber},
		},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Validate())
	return authors, books, profiles
}

func TestRelations(t *testing.T) {
	authors, books, profiles := newLibrary(t)

	_, err := authors.Inject(
		Record{"id": 1, "name": "ursula", "favorite_ids": []any{12, 10, 99}},
		Record{"id": 2, "name": "italo"},
	)
	require.NoError(t, err)
	_, err = books.Inject(
		Record{"id": 10, "title": "earthsea", "author_id": 1},
		Record{"id": 11, "title": "cities", "author_id": 2},
		Record{"id": 12, "title": "dispossessed", "author_id": 1},
		Record{"id": 13, "title": "orphan", "author_id": 3},
	)
	require.NoError(t, err)
	_, err = profiles.InjectOne(Record{"id": "p1", "author_id": 2})
	require.NoError(t, err)

	ursula := authors.FindByID(1)
	italo := authors.FindByID(2)

	t.Run("belongs to one", func(t *testing.T) {
		author, err := books.FindByID(10).One("author")
		require.NoError(t, err)
		assert.Same(t, ursula, author)

		author, err = books.FindByID(13).One("author")
		require.NoError(t, err)
		assert.Nil(t, author)
	})

	t.Run("belongs to many", func(t *testing.T) {
		favorites, err := ursula.Many("favorites")
		require.NoError(t, err)
		// store order, missing ids skipped
		assert.Equal(t, []any{float64(10), float64(12)}, ids(favorites))

		favorites, err = italo.Many("favorites")
		require.NoError(t, err)
		assert.Empty(t, favorites)
	})

	t.Run("has one", func(t *testing.T) {
		profile, err := italo.One("profile")
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Equal(t, "p1", profile.ID())

		profile, err = ursula.One("profile")
		require.NoError(t, err)
		assert.Nil(t, profile)
	})

	t.Run("has many", func(t *testing.T) {
		written, err := ursula.Many("books")
		require.NoError(t, err)
		assert.Equal(t, []any{float64(10), float64(12)}, ids(written))
	})

	t.Run("relations are live", func(t *testing.T) {
		_, err := books.RemoveByID(10)
		require.NoError(t, err)
		_, err = books.InjectOne(Record{"id": 14, "title": "lathe", "author_id": 1})
		require.NoError(t, err)

		written, err := ursula.Many("books")
		require.NoError(t, err)
		assert.Equal(t, []any{float64(12), float64(14)}, ids(written))
	})
}

func TestRelations_UnknownStore(t *testing.T) {
	reg := NewRegistry()
	s, err := New(reg, &metadata.Schema{
		Name: "book",
		Fields: []metadata.Field{
			{Name: "author_id", Kind: metadata.KindNumber},
			relationField("author", metadata.BelongsToOne, "author", "author_id", ""),
		},
	})
	require.NoError(t, err)
	assert.True(t, engine.HasCode(reg.Validate(), engine.CodeUnknownRelatedStore))

	e, err := s.InjectOne(Record{"id": 1, "author_id": 5})
	require.NoError(t, err)
	_, err = e.Get("author")
	assert.True(t, engine.HasCode(err, engine.CodeUnknownRelatedStore))

	// stores built without a registry cannot resolve relations either
	orphan, err := New(nil, s.Schema())
	require.NoError(t, err)
	e, err = orphan.InjectOne(Record{"id": 1, "author_id": 5})
	require.NoError(t, err)
	_, err = e.One("author")
	assert.True(t, engine.HasCode(err, engine.CodeUnknownRelatedStore))
}

func TestRelations_NotFilterable(t *testing.T) {
	_, books, _ := newLibrary(t)
	_, err := books.InjectOne(Record{"id": 1, "author_id": 1})
	require.NoError(t, err)

	_, err = books.FindAll(engine.Where{"author": 1})
	assert.True(t, engine.HasCode(err, engine.CodeUnsupportedFieldKind))

	// the kind is rejected before the relation or computed value is read
	var computed int
	orphan, err := New(NewRegistry(), &metadata.Schema{
		Name: "book",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindNumber},
			{Name: "author_id", Kind: metadata.KindNumber},
			relationField("author", metadata.BelongsToOne, "author", "author_id", ""),
			{Name: "slug", Kind: metadata.KindComputed, Compute: func(metadata.Accessor) (any, error) {
				computed++
				return "slug", nil
			}},
		},
	})
	require.NoError(t, err)
	_, err = orphan.InjectOne(Record{"id": 1, "author_id": 1})
	require.NoError(t, err)

	_, err = orphan.FindAll(engine.Where{"author": 1})
	assert.True(t, engine.HasCode(err, engine.CodeUnsupportedFieldKind))
	_, err = orphan.FindOne(engine.Where{"slug": "slug"})
	assert.True(t, engine.HasCode(err, engine.CodeUnsupportedFieldKind))
	_, err = orphan.Remove(engine.Where{"author": nil})
	assert.True(t, engine.HasCode(err, engine.CodeUnsupportedFieldKind))
	assert.Equal(t, 0, computed)
	assert.Equal(t, 1, orphan.Len())
}

func TestRelations_BelongsToOne(t *testing.T) {
	authors, books, _ := newLibrary(t)

	noAuthor, err := books.InjectOne(Record{"id": 1, "author_id": nil})
	require.NoError(t, err)
	author, err := noAuthor.One("author")
	require.NoError(t, err)
	assert.Nil(t, author)

	unset, err := books.InjectOne(Record{"id": 2})
	require.NoError(t, err)
	author, err = unset.One("author")
	require.NoError(t, err)
	assert.Nil(t, author)

	// a reference injected before its target resolves once the target arrives
	early, err := books.InjectOne(Record{"id": 3, "author_id": 9})
	require.NoError(t, err)
	author, err = early.One("author")
	require.NoError(t, err)
	assert.Nil(t, author)

	late, err := authors.InjectOne(Record{"id": 9, "name": "late"})
	require.NoError(t, err)
	author, err = early.One("author")
	require.NoError(t, err)
	assert.Same(t, late, author)
}
