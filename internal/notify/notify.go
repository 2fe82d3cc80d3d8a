package notify

import (
	"log"

	"github.com/voicebridge/voicebridge/internal/events"
)

// Dispatcher receives job outcome notifications. The capture device surfaces
// them to the user; this side only emits.
type Dispatcher interface {
	JobCompleted(audioFileName, title string)
	JobFailed(audioFileName, title, reason string)
}

// LogDispatcher writes notifications to the process log.
type LogDispatcher struct{}

// JobCompleted logs a completion notice.
func (LogDispatcher) JobCompleted(audioFileName, title string) {
	log.Printf("notify: transcription completed for %q (%s)", title, audioFileName)
}

// JobFailed logs a failure notice.
func (LogDispatcher) JobFailed(audioFileName, title, reason string) {
	log.Printf("notify: transcription failed for %q (%s): %s", title, audioFileName, reason)
}

// BusDispatcher forwards notifications to the event bus for websocket
// subscribers, in addition to an inner dispatcher.
type BusDispatcher struct {
	Bus   *events.Bus
	Inner Dispatcher
}

// JobCompleted publishes a completed event and forwards.
func (d *BusDispatcher) JobCompleted(audioFileName, title string) {
	if d.Bus != nil {
		d.Bus.Publish(events.Event{
			Type:          events.TypeCompleted,
			AudioFileName: audioFileName,
			Title:         title,
		})
	}
	if d.Inner != nil {
		d.Inner.JobCompleted(audioFileName, title)
	}
}

// JobFailed publishes a failed event and forwards.
func (d *BusDispatcher) JobFailed(audioFileName, title, reason string) {
	if d.Bus != nil {
		d.Bus.Publish(events.Event{
			Type:          events.TypeFailed,
			AudioFileName: audioFileName,
			Title:         title,
			Message:       reason,
		})
	}
	if d.Inner != nil {
		d.Inner.JobFailed(audioFileName, title, reason)
	}
}
