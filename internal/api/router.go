package api

import (
	"github.com/gofiber/fiber/v2"

	"resource-cache/internal/instrument"
)

// RegisterRoutes mounts the cache API. writeMW guards every mutating route.
func RegisterRoutes(app *fiber.App, h *Handler, writeMW ...fiber.Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/_stores", h.Stores)

	api := app.Group("/api")
	api.Get("/:entity", h.List)
	api.Get("/:entity/:id", h.GetByID)
	api.Post("/:entity/_refresh", guard(writeMW, h.Refresh)...)
	api.Post("/:entity", guard(writeMW, h.Inject)...)
	api.Delete("/:entity/:id", guard(writeMW, h.Delete)...)
	api.Delete("/:entity", guard(writeMW, h.Remove)...)
}

// RegisterEventRoutes mounts the change-event listing.
func RegisterEventRoutes(app *fiber.App, h *instrument.EventHandler) {
	app.Get("/_events", h.List)
}

func guard(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	return append(append([]fiber.Handler{}, mw...), h)
}
