package instrument

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// EventHandler exposes the recorded change events.
type EventHandler struct {
	recorder *Recorder
}

func NewEventHandler(recorder *Recorder) *EventHandler {
	return &EventHandler{recorder: recorder}
}

// List handles GET /_events: recent change events, newest first, filtered
// by store and action.
func (h *EventHandler) List(c *fiber.Ctx) error {
	storeName := c.Query("store")
	action := c.Query("action")

	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	events := h.recorder.Recent()
	data := make([]ChangeEvent, 0, perPage)
	for i := len(events) - 1; i >= 0 && len(data) < perPage; i-- {
		e := events[i]
		if storeName != "" && e.Store != storeName {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		data = append(data, e)
	}

	return c.JSON(fiber.Map{
		"data": data,
		"pagination": fiber.Map{
			"per_page": perPage,
			"total":    len(data),
		},
	})
}
