package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voicebridge/voicebridge/internal/heartbeat"
	"github.com/voicebridge/voicebridge/internal/queue"
	"github.com/voicebridge/voicebridge/internal/store"
)

// StatusHandler reports daemon health, queue counts, and heartbeat state.
type StatusHandler struct {
	queue      *queue.Queue
	store      *store.Store
	staleAfter time.Duration
	startedAt  time.Time
}

// NewStatusHandler creates the status handler.
func NewStatusHandler(q *queue.Queue, st *store.Store, staleAfter time.Duration) *StatusHandler {
	return &StatusHandler{
		queue:      q,
		store:      st,
		staleAfter: staleAfter,
		startedAt:  time.Now().UTC(),
	}
}

// Handle returns the status document.
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	snap := h.queue.Snapshot()

	doc := fiber.Map{
		"status":       "running",
		"startedAt":    h.startedAt,
		"queuedCount":  len(snap.Pending),
		"historyCount": len(snap.History),
		"activeTask":   snap.Active,
	}

	hb, stale, err := heartbeat.Read(h.store, h.staleAfter)
	if err != nil {
		doc["heartbeat"] = fiber.Map{"error": err.Error()}
	} else {
		doc["heartbeat"] = fiber.Map{
			"record": hb,
			"stale":  stale,
		}
	}
	return c.JSON(doc)
}
