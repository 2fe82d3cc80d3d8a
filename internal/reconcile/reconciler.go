package reconcile

import (
	"log"
	"time"

	"github.com/voicebridge/voicebridge/internal/events"
	"github.com/voicebridge/voicebridge/internal/notify"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/types"
)

// ActiveSet answers whether a recording is being worked on right now; the
// queue implements it.
type ActiveSet interface {
	IsActive(audioFileName string) bool
}

// Reconciler periodically repairs shared records left inconsistent by
// crashes, cancellations, or sync conflicts. It also runs the duplicate
// cleanup pass over the shared folder.
type Reconciler struct {
	store          *store.Store
	active         ActiveSet
	dispatcher     notify.Dispatcher
	bus            *events.Bus
	device         string
	interval       time.Duration
	stuckThreshold time.Duration
	stopChan       chan struct{}
}

// New creates a reconciler.
func New(st *store.Store, active ActiveSet, dispatcher notify.Dispatcher, bus *events.Bus, device string, interval, stuckThreshold time.Duration) *Reconciler {
	return &Reconciler{
		store:          st,
		active:         active,
		dispatcher:     dispatcher,
		bus:            bus,
		device:         device,
		interval:       interval,
		stuckThreshold: stuckThreshold,
		stopChan:       make(chan struct{}),
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval.
func (r *Reconciler) Start() {
	r.RunOnce()

	ticker := time.NewTicker(r.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.RunOnce()
			case <-r.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
	log.Printf("reconciler started (every %s, stuck threshold %s)", r.interval, r.stuckThreshold)
}

// Stop stops the periodic sweep.
func (r *Reconciler) Stop() {
	close(r.stopChan)
}

// RunOnce performs a single sweep: duplicate cleanup, then stuck-record
// repair. Failed records are never touched; only an explicit user retry
// clears a failure.
func (r *Reconciler) RunOnce() {
	r.store.CleanDuplicates()

	metas, err := r.store.ListMetadata()
	if err != nil {
		log.Printf("reconciler: %v", err)
		return
	}

	for _, meta := range metas {
		if meta.Status != types.StatusTranscribing {
			continue
		}
		if r.active.IsActive(meta.AudioFileName) {
			continue
		}
		if time.Since(meta.UpdatedAt) < r.stuckThreshold {
			continue
		}
		r.repair(meta)
	}
}

// repair reclassifies one stuck transcribing record. Exactly one of three
// outcomes applies: failed when an error was already recorded, completed
// when the transcript landed before the crash, pending otherwise.
func (r *Reconciler) repair(meta *types.RecordingMetadata) {
	name := meta.AudioFileName

	switch {
	case meta.ErrorMessage != nil:
		reason := *meta.ErrorMessage
		meta.SetFailed(reason)
		log.Printf("reconciler: %s stuck with recorded error, marked failed", name)
		if r.dispatcher != nil {
			r.dispatcher.JobFailed(name, meta.Title, reason)
		}
	case r.store.HasTranscript(name):
		// The transcript write landed but the crash beat the status
		// update; finish the bookkeeping and announce the result.
		meta.SetCompleted(store.TranscriptFileName(name), r.device)
		log.Printf("reconciler: %s has a transcript, marked completed", name)
		if r.dispatcher != nil {
			r.dispatcher.JobCompleted(name, meta.Title)
		}
	default:
		meta.SetStatus(types.StatusPending)
		log.Printf("reconciler: %s reset to pending", name)
	}

	if err := r.store.Save(meta); err != nil {
		log.Printf("reconciler: save %s: %v", name, err)
		return
	}
	if r.bus != nil {
		r.bus.Publish(events.Event{
			Type:          events.TypeRepaired,
			AudioFileName: name,
			Title:         meta.Title,
			Message:       string(meta.Status),
		})
	}
}
