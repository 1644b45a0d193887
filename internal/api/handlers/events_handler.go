package handlers

import (
	"bufio"
	"fmt"
	"time"

	"knova/internal/notify"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type EventsHandler struct {
	hub    *notify.Hub
	logger *zap.Logger
}

func NewEventsHandler(hub *notify.Hub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: logger,
	}
}

// Stream pushes ingestion progress events for the caller's documents over
// SSE. A periodic keepalive comment makes dead connections fail a write, so
// subscriptions of gone clients are cleaned up.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	hub := h.hub
	logger := h.logger

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		events, cancel := hub.Subscribe(userID)
		defer cancel()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case event := <-events:
				if err := writeSSE(w, event); err != nil {
					logger.Debug("Event stream closed", zap.Error(err))
					return
				}
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
