package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"resource-cache/internal/engine"
	"resource-cache/internal/metadata"
	"resource-cache/internal/source"
	"resource-cache/internal/store"
)

// Handler serves the stores of one registry over HTTP. Stores are not safe
// for concurrent use, so every request holds mu for its whole duration.
type Handler struct {
	mu     sync.Mutex
	stores *store.Registry
	source *source.DB
	log    *zap.Logger
}

// NewHandler creates a Handler. src may be nil when no database is
// configured; refresh requests then fail.
func NewHandler(stores *store.Registry, src *source.DB, log *zap.Logger) *Handler {
	return &Handler{stores: stores, source: src, log: log}
}

// Locker returns the lock guarding the stores, for other handlers that
// touch them.
func (h *Handler) Locker() sync.Locker {
	return &h.mu
}

// Stores handles GET /_stores
func (h *Handler) Stores(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data := make([]fiber.Map, 0, h.stores.Len())
	for _, name := range h.stores.Names() {
		st := h.stores.Get(name)
		data = append(data, fiber.Map{
			"name":        name,
			"count":       st.Len(),
			"unique_keys": st.Schema().Keys(),
		})
	}
	return c.JSON(fiber.Map{"data": data})
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.resolveStore(c)
	if err != nil {
		return err
	}

	where, err := engine.ParseFilterParams(c.Queries(), st.Schema())
	if err != nil {
		return err
	}
	entities, err := st.FindAll(where)
	if err != nil {
		return err
	}

	data, err := renderAll(entities, engine.ParseIncludes(c.Query("include")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": data,
		"meta": fiber.Map{"total": len(data)},
	})
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.resolveStore(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	e := findByParam(st, id)
	if e == nil {
		return engine.NotFoundError(st.Name(), id)
	}

	data, err := render(e, engine.ParseIncludes(c.Query("include")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": data})
}

// Inject handles POST /api/:entity. The body is one record or an array of
// records; either all of them are injected or none.
func (h *Handler) Inject(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.resolveStore(c)
	if err != nil {
		return err
	}

	records, err := parseRecords(c.Body())
	if err != nil {
		return err
	}
	entities, err := st.Inject(records...)
	if err != nil {
		return err
	}

	data, err := renderAll(entities, nil)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": data})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.resolveStore(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	e := findByParam(st, id)
	if e == nil {
		return engine.NotFoundError(st.Name(), id)
	}
	if _, err := st.RemoveByID(keyOf(e)); err != nil {
		return err
	}

	data, err := render(e, nil)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": data})
}

// Remove handles DELETE /api/:entity. Filters select the entities to
// remove; without filters the store is cleared.
func (h *Handler) Remove(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.resolveStore(c)
	if err != nil {
		return err
	}

	where, err := engine.ParseFilterParams(c.Queries(), st.Schema())
	if err != nil {
		return err
	}
	silent := c.QueryBool("silent")

	var removed []*store.Entity
	switch {
	case where == nil && !silent:
		removed = st.Clear()
	case silent:
		removed, err = st.Remove(where, store.WithoutSignal())
	default:
		removed, err = st.Remove(where)
	}
	if err != nil {
		return err
	}

	data, err := renderAll(removed, nil)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": data,
		"meta": fiber.Map{"removed": len(data)},
	})
}

// Refresh handles POST /api/:entity/_refresh. With {"ids": [...]} only
// those rows are re-read from the source database; otherwise the whole
// table is.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, err := h.resolveStore(c)
	if err != nil {
		return err
	}
	if h.source == nil {
		return engine.InvalidPayloadError("no source database is configured")
	}

	var body struct {
		IDs []any `json:"ids"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return engine.InvalidPayloadError("Invalid JSON body")
		}
	}

	var n int
	if body.IDs == nil {
		n, err = h.source.Hydrate(c.UserContext(), st, h.log)
	} else {
		n, err = h.source.Refresh(c.UserContext(), st, body.IDs, h.log)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"injected": n}})
}

func (h *Handler) resolveStore(c *fiber.Ctx) (*store.Store, error) {
	name := c.Params("entity")
	st := h.stores.Get(name)
	if st == nil {
		return nil, engine.UnknownEntityError(name)
	}
	return st, nil
}

// findByParam looks an entity up by its path id. Composite keys are
// comma-separated in unique-key order. Each part is tried as a string and,
// when it parses, as a number.
func findByParam(st *store.Store, id string) *store.Entity {
	keys := st.Schema().Keys()
	parts := []string{id}
	if len(keys) > 1 {
		parts = strings.Split(id, ",")
		if len(parts) != len(keys) {
			return nil
		}
	}

	candidates := [][]any{{}}
	for i, p := range parts {
		var options []any
		f := st.Schema().GetField(keys[i])
		if f == nil || f.Kind == metadata.KindString {
			options = append(options, p)
		}
		if f == nil || f.Kind == metadata.KindNumber {
			if n, err := strconv.ParseFloat(p, 64); err == nil {
				options = append(options, n)
			}
		}

		var next [][]any
		for _, c := range candidates {
			for _, o := range options {
				next = append(next, append(append([]any{}, c...), o))
			}
		}
		candidates = next
	}

	for _, key := range candidates {
		if e := st.FindByID(key); e != nil {
			return e
		}
	}
	return nil
}

func keyOf(e *store.Entity) any {
	key := e.Key()
	if len(key) == 1 {
		return key[0]
	}
	return key
}

func parseRecords(body []byte) ([]store.Record, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, engine.InvalidPayloadError("Invalid JSON body")
	}

	switch p := payload.(type) {
	case map[string]any:
		return []store.Record{p}, nil
	case []any:
		records := make([]store.Record, len(p))
		for i, item := range p {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, engine.InvalidPayloadError("Array items must be objects")
			}
			records[i] = obj
		}
		return records, nil
	}
	return nil, engine.InvalidPayloadError("Body must be an object or an array of objects")
}
