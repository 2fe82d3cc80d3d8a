package handlers

import (
	"log"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/voicebridge/voicebridge/internal/events"
)

// EventsHandler streams queue events to websocket subscribers. Each client
// tracks its own sequence cursor against the bounded bus.
type EventsHandler struct {
	bus *events.Bus
}

// NewEventsHandler creates the websocket event stream handler.
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus}
}

// Handle runs one websocket session until the client disconnects.
func (h *EventsHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var cursor int64
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			for _, event := range h.bus.Since(cursor) {
				if err := c.WriteJSON(event); err != nil {
					log.Printf("event stream: %v", err)
					return
				}
				cursor = event.Seq
			}
		}
	}
}
