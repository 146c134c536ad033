package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"resource-cache/internal/auth"
	"resource-cache/internal/metadata"
	"resource-cache/internal/store"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestApp(t *testing.T, writeMW ...fiber.Handler) (*fiber.App, *store.Registry) {
	t.Helper()
	reg := store.NewRegistry()

	_, err := store.New(reg, &metadata.Schema{
		Name: "author",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindNumber},
			{Name: "name", Kind: metadata.KindString},
			{Name: "shout", Kind: metadata.KindComputed, Expression: `upper(record.name)`},
			{Name: "books", Kind: metadata.KindRelation, Relation: &metadata.Relation{
				Shape: metadata.HasMany, Target: "book", TargetProperty: "author_id",
			}},
		},
	})
	require.NoError(t, err)
	_, err = store.New(reg, &metadata.Schema{
		Name: "book",
		Fields: []metadata.Field{
			{Name: "id", Kind: metadata.KindString},
			{Name: "title", Kind: metadata.KindString},
			{Name: "pages", Kind: metadata.KindNumber},
			{Name: "author_id", Kind: metadata.KindNumber},
			{Name: "author", Kind: metadata.KindRelation, Relation: &metadata.Relation{
				Shape: metadata.BelongsToOne, Target: "author", SourceProperty: "author_id",
			}},
		},
	})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	RegisterRoutes(app, NewHandler(reg, nil, zap.NewNop()), writeMW...)
	return app, reg
}

func do(t *testing.T, app *fiber.App, method, path, body string, header ...string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func seed(t *testing.T, app *fiber.App) {
	t.Helper()
	status, _ := do(t, app, "POST", "/api/author", `[{"id":1,"name":"ursula"},{"id":2,"name":"italo"}]`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = do(t, app, "POST", "/api/book", `[
		{"id":"b1","title":"earthsea","pages":200,"author_id":1},
		{"id":"b2","title":"cities","pages":160,"author_id":2},
		{"id":"b3","title":"lathe","pages":180,"author_id":1}
	]`)
	require.Equal(t, http.StatusCreated, status)
}

func TestInjectAndGet(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, app)
	assert.Equal(t, 3, reg.Get("book").Len())

	status, env := do(t, app, "GET", "/api/author/1?include=books", "")
	require.Equal(t, http.StatusOK, status)

	var author map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &author))
	assert.Equal(t, "URSULA", author["shout"])
	assert.Len(t, author["books"], 2)

	status, env = do(t, app, "GET", "/api/book/b2?include=author", "")
	require.Equal(t, http.StatusOK, status)
	var book map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &book))
	assert.Equal(t, "italo", book["author"].(map[string]any)["name"])
}

func TestInject_Errors(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, "POST", "/api/author", `{"name":"nokey"}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "MISSING_KEY", env.Error.Code)

	status, env = do(t, app, "POST", "/api/author", `[1, 2]`)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", env.Error.Code)

	status, env = do(t, app, "POST", "/api/nope", `{}`)
	assert.Equal(t, 404, status)
	assert.Equal(t, "UNKNOWN_ENTITY", env.Error.Code)
}

func TestList_Filters(t *testing.T) {
	app, _ := newTestApp(t)
	seed(t, app)

	status, env := do(t, app, "GET", "/api/book?filter[pages.gte]=170&filter[author_id]=1", "")
	require.Equal(t, http.StatusOK, status)
	var books []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &books))
	require.Len(t, books, 2)
	assert.Equal(t, "b1", books[0]["id"])
	assert.Equal(t, "b3", books[1]["id"])

	status, env = do(t, app, "GET", "/api/book?filter[title.like]=%5Ec", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &books))
	assert.Len(t, books, 1)

	status, env = do(t, app, "GET", "/api/book?filter[author]=1", "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "UNSUPPORTED_FIELD_KIND", env.Error.Code)
}

func TestDelete(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, app)

	status, _ := do(t, app, "DELETE", "/api/book/b1", "")
	assert.Equal(t, http.StatusOK, status)
	status, env := do(t, app, "DELETE", "/api/book/b1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = do(t, app, "DELETE", "/api/book?filter[pages.lt]=170", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), env.Meta["removed"])
	assert.Equal(t, 1, reg.Get("book").Len())

	status, _ = do(t, app, "DELETE", "/api/book", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, reg.Get("book").Len())
}

func TestRefresh_WithoutSource(t *testing.T) {
	app, _ := newTestApp(t)
	status, env := do(t, app, "POST", "/api/book/_refresh", "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PAYLOAD", env.Error.Code)
}

func TestStoresAndHealth(t *testing.T) {
	app, _ := newTestApp(t)
	seed(t, app)

	status, env := do(t, app, "GET", "/_stores", "")
	require.Equal(t, http.StatusOK, status)
	var stores []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &stores))
	require.Len(t, stores, 2)
	assert.Equal(t, "author", stores[0]["name"])
	assert.Equal(t, float64(2), stores[0]["count"])

	status, _ = do(t, app, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestWriteRoutesRequireAuth(t *testing.T) {
	const secret = "s3cret"
	app, _ := newTestApp(t, auth.AuthMiddleware(secret), auth.RequireRole(auth.RoleWriter))

	status, env := do(t, app, "POST", "/api/author", `{"id":1}`)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	token, err := auth.GenerateAccessToken("loader", []string{auth.RoleWriter}, secret, 0)
	require.NoError(t, err)
	status, _ = do(t, app, "POST", "/api/author", `{"id":1}`, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusCreated, status)

	// reads stay open
	status, _ = do(t, app, "GET", "/api/author/1", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestFindByParam_CompositeKey(t *testing.T) {
	st, err := store.New(nil, &metadata.Schema{
		Name:       "seat",
		UniqueKeys: []string{"row", "col"},
		Fields: []metadata.Field{
			{Name: "row", Kind: metadata.KindString},
			{Name: "col", Kind: metadata.KindNumber},
		},
	})
	require.NoError(t, err)
	_, err = st.InjectOne(store.Record{"row": "A", "col": 3})
	require.NoError(t, err)

	assert.NotNil(t, findByParam(st, "A,3"))
	assert.Nil(t, findByParam(st, "A"))
	assert.Nil(t, findByParam(st, "A,x"))
}
