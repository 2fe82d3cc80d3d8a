package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/transcription"
	"github.com/voicebridge/voicebridge/internal/types"
)

// SharedWatcher observes the shared synced folder for metadata, transcript,
// and audio changes. Push notifications can be missed entirely (the sync
// client may write while we are down), so Rescan doubles as the initial
// gather and as the polling fallback; both feed the same dedup path.
type SharedWatcher struct {
	store *store.Store
	state *store.StateFile
	sink  Enqueuer

	// notified holds the last emitted signature per live recording. Terminal
	// recordings are evicted; the persisted processed set covers them, and
	// eviction keeps the map bounded by in-flight work rather than growing
	// with every recording ever seen.
	mu       sync.Mutex
	notified map[string]string
}

// NewSharedWatcher creates a watcher over the shared store.
func NewSharedWatcher(st *store.Store, state *store.StateFile, sink Enqueuer) *SharedWatcher {
	return &SharedWatcher{
		store:    st,
		state:    state,
		sink:     sink,
		notified: make(map[string]string),
	}
}

// Start performs the initial gather and then watches for changes until ctx
// is cancelled.
func (w *SharedWatcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create shared watcher: %w", err)
	}
	if err := fw.Add(w.store.Dir()); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.store.Dir(), err)
	}

	w.Rescan(types.SourceShared)

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				w.handleFile(filepath.Base(event.Name), types.SourceShared)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Printf("shared watcher: %v", err)
			}
		}
	}()

	log.Printf("shared watcher started on %s", w.store.Dir())
	return nil
}

// Rescan classifies every file currently in the shared folder. Safe to run
// repeatedly; the notified set keeps repeat classifications from emitting
// duplicate queue entries.
func (w *SharedWatcher) Rescan(source string) {
	entries, err := os.ReadDir(w.store.Dir())
	if err != nil {
		log.Printf("shared watcher: scan: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.handleFile(entry.Name(), source)
	}
}

// handleFile resolves a changed file to its recording and classifies it.
func (w *SharedWatcher) handleFile(fileName, source string) {
	if strings.HasPrefix(fileName, ".") || fileName == store.HeartbeatFileName {
		return
	}

	switch ext := strings.ToLower(filepath.Ext(fileName)); {
	case ext == ".json":
		meta, err := w.store.LoadMetadataFile(fileName)
		if err != nil {
			log.Printf("shared watcher: %v", err)
			return
		}
		if meta != nil && meta.AudioFileName != "" {
			w.classify(meta.AudioFileName, source)
		}
	case ext == ".txt":
		// A transcript landed; find its recording through the metadata
		// sibling so the processed set can be updated.
		base := strings.TrimSuffix(fileName, ext)
		meta, err := w.store.LoadMetadataFile(base + ".json")
		if err != nil || meta == nil || meta.AudioFileName == "" {
			return
		}
		w.classify(meta.AudioFileName, source)
	case transcription.ValidateAudioFormat(fileName):
		w.classify(fileName, source)
	}
}

// classify re-runs the candidate logic for one recording. Recordings whose
// metadata is terminal, or whose transcript already exists, are marked
// processed; live candidates are enqueued at most once per logical change.
func (w *SharedWatcher) classify(audioFileName, source string) {
	if w.state.IsIgnored(audioFileName) {
		return
	}

	meta, err := w.store.Load(audioFileName)
	if err != nil {
		log.Printf("shared watcher: %v", err)
		return
	}

	if w.store.HasTranscript(audioFileName) || (meta != nil && meta.Status.IsTerminal()) {
		if err := w.state.MarkProcessed(audioFileName); err != nil {
			log.Printf("shared watcher: mark processed %s: %v", audioFileName, err)
		}
		w.forget(audioFileName)
		return
	}

	// The capture device may have reset a failed record back to pending
	// (its side of a retry); drop our processed mark so it runs again.
	if meta != nil && meta.Status == types.StatusPending && w.state.IsProcessed(audioFileName) {
		if err := w.state.ClearProcessed(audioFileName); err != nil {
			log.Printf("shared watcher: clear processed %s: %v", audioFileName, err)
		}
	}
	if w.state.IsProcessed(audioFileName) {
		return
	}

	signature := "no-metadata"
	if meta != nil {
		signature = string(meta.Status)
	}
	if !w.firstSighting(audioFileName, signature) {
		return
	}

	if err := w.sink.Enqueue(audioFileName, w.store.AudioPath(audioFileName), source); err != nil {
		log.Printf("shared watcher: enqueue %s: %v", audioFileName, err)
	}
}

// firstSighting reports whether this recording+state combination has not
// been emitted before, and records it.
func (w *SharedWatcher) firstSighting(audioFileName, signature string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.notified[audioFileName] == signature {
		return false
	}
	w.notified[audioFileName] = signature
	return true
}

// forget drops a recording from the dedup map once it needs no further work.
func (w *SharedWatcher) forget(audioFileName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.notified, audioFileName)
}
