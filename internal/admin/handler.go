package admin

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"resource-cache/internal/engine"
	"resource-cache/internal/metadata"
	"resource-cache/internal/source"
	"resource-cache/internal/store"
)

// Handler manages entity schemas at runtime. New schemas get a store right
// away; stores are never dropped.
type Handler struct {
	mu      sync.Locker
	stores  *store.Registry
	db      *source.DB
	opts    []store.Option
	created func(*store.Store)
	log     *zap.Logger
}

// NewHandler creates an admin Handler. mu must be the lock guarding the
// stores. db may be nil. created, when set, runs for every new store while
// mu is held.
func NewHandler(mu sync.Locker, stores *store.Registry, db *source.DB, created func(*store.Store), log *zap.Logger, opts ...store.Option) *Handler {
	return &Handler{mu: mu, stores: stores, db: db, opts: opts, created: created, log: log}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)
	admin.Post("/entities", h.CreateEntity)
}

// --- Entity Endpoints ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := h.stores.Names()
	schemas := make([]*metadata.Schema, len(names))
	for i, name := range names {
		schemas[i] = h.stores.Get(name).Schema()
	}
	return c.JSON(fiber.Map{"data": schemas})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := c.Params("name")
	st := h.stores.Get(name)
	if st == nil {
		return engine.UnknownEntityError(name)
	}
	return c.JSON(fiber.Map{"data": st.Schema()})
}

func (h *Handler) CreateEntity(c *fiber.Ctx) error {
	var schema metadata.Schema
	if err := json.Unmarshal(c.Body(), &schema); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	if err := schema.Validate(); err != nil {
		return engine.InvalidSchemaError(err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stores.Get(schema.Name) != nil {
		return engine.DuplicateStoreError(schema.Name)
	}
	// a detached store compiles the expressions before anything is saved
	if _, err := store.New(nil, &schema, h.opts...); err != nil {
		return err
	}
	if h.db != nil {
		if err := h.db.SaveSchema(c.UserContext(), &schema); err != nil {
			return err
		}
	}

	st, err := store.New(h.stores, &schema, h.opts...)
	if err != nil {
		return err
	}
	if h.created != nil {
		h.created(st)
	}
	h.log.Info("created store", zap.String("store", st.Name()))

	if h.db != nil {
		exists, err := h.db.Dialect.TableExists(c.UserContext(), h.db.DB, tableOf(&schema))
		if err != nil {
			return err
		}
		if exists {
			if _, err := h.db.Hydrate(c.UserContext(), st, h.log); err != nil {
				return err
			}
		}
	}

	return c.Status(201).JSON(fiber.Map{"data": st.Schema()})
}

func tableOf(s *metadata.Schema) string {
	if s.Table != "" {
		return s.Table
	}
	return s.Name
}
