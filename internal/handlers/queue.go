package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/voicebridge/voicebridge/internal/queue"
)

// QueueHandler exposes queue inspection and control.
type QueueHandler struct {
	queue *queue.Queue
}

// NewQueueHandler creates the queue control handler.
func NewQueueHandler(q *queue.Queue) *QueueHandler {
	return &QueueHandler{queue: q}
}

// List returns the active task, queued items, and completed history.
func (h *QueueHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.queue.Snapshot())
}

// Reorder rearranges queued items to match the submitted name order.
func (h *QueueHandler) Reorder(c *fiber.Ctx) error {
	var body struct {
		Names []string `json:"names"`
	}
	if err := c.BodyParser(&body); err != nil || len(body.Names) == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "Expected a non-empty names array",
			"code":  "ERR_BAD_REQUEST",
		})
	}
	h.queue.Reorder(body.Names)
	return c.JSON(h.queue.Snapshot())
}

// Remove drops a queued recording.
func (h *QueueHandler) Remove(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.queue.Remove(name); err != nil {
		status := 404
		if errors.Is(err, queue.ErrTaskActive) {
			status = 409
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"removed": name})
}

// Retry clears a failed recording and re-enqueues it.
func (h *QueueHandler) Retry(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.queue.Retry(name); err != nil {
		status := 500
		if errors.Is(err, queue.ErrNotFailed) {
			status = 409
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"retried": name})
}

// Ignore permanently excludes a recording from processing.
func (h *QueueHandler) Ignore(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.queue.Ignore(name); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ignored": name})
}

// Cancel aborts the active transcription.
func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	if err := h.queue.Cancel(); err != nil {
		if errors.Is(err, queue.ErrNoActiveTask) {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"cancelled": true})
}
