package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/transcription"
	"github.com/voicebridge/voicebridge/internal/types"
)

// LocalWatcher observes a single local directory (non-recursive) for new
// audio recordings. Files still being written are held back by a per-file
// debounce timer followed by a size-stability check.
type LocalWatcher struct {
	dir       string
	debounce  time.Duration
	stability time.Duration
	store     *store.Store
	state     *store.StateFile
	sink      Enqueuer

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewLocalWatcher creates a watcher for the given directory.
func NewLocalWatcher(dir string, debounce, stability time.Duration, st *store.Store, state *store.StateFile, sink Enqueuer) *LocalWatcher {
	return &LocalWatcher{
		dir:       dir,
		debounce:  debounce,
		stability: stability,
		store:     st,
		state:     state,
		sink:      sink,
		timers:    make(map[string]*time.Timer),
	}
}

// Start scans the directory once, then watches it until ctx is cancelled.
func (w *LocalWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create local watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.Scan(ctx)

	go func() {
		defer fw.Close()
		defer w.stopTimers()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				if w.isCandidate(name) {
					w.scheduleCheck(ctx, name)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Printf("local watcher: %v", err)
			}
		}
	}()

	log.Printf("local watcher started on %s", w.dir)
	return nil
}

// Scan walks the directory once and schedules a stability check for every
// candidate, so recordings that predate the watcher are picked up too.
func (w *LocalWatcher) Scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("local watcher: scan %s: %v", w.dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if w.isCandidate(entry.Name()) {
			w.scheduleCheck(ctx, entry.Name())
		}
	}
}

// isCandidate applies the acceptance filters: audio extension allow-list,
// not ignored, not already processed, no transcript yet.
func (w *LocalWatcher) isCandidate(name string) bool {
	if !transcription.ValidateAudioFormat(name) {
		return false
	}
	if w.state.IsIgnored(name) || w.state.IsProcessed(name) {
		return false
	}
	if w.store.HasTranscript(name) {
		return false
	}
	return true
}

// scheduleCheck (re)starts the per-file debounce timer. Repeated events for
// the same file reset the timer instead of racing each other.
func (w *LocalWatcher) scheduleCheck(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[name]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.checkStable(ctx, name)
	})
}

// checkStable samples the file size twice across the quiet window and only
// enqueues when both samples match; a growing file re-arms the timer.
func (w *LocalWatcher) checkStable(ctx context.Context, name string) {
	path := filepath.Join(w.dir, name)

	first, err := os.Stat(path)
	if err != nil {
		w.releaseTimer(name)
		return
	}

	select {
	case <-ctx.Done():
		w.releaseTimer(name)
		return
	case <-time.After(w.stability):
	}

	second, err := os.Stat(path)
	if err != nil {
		w.releaseTimer(name)
		return
	}

	if first.Size() != second.Size() || second.Size() == 0 {
		// Still being written; try again after another quiet period.
		w.mu.Lock()
		if timer, ok := w.timers[name]; ok {
			timer.Reset(w.debounce)
		}
		w.mu.Unlock()
		return
	}

	w.releaseTimer(name)
	if !w.isCandidate(name) {
		return
	}
	if err := w.sink.Enqueue(name, path, types.SourceLocal); err != nil {
		log.Printf("local watcher: enqueue %s: %v", name, err)
	}
}

// releaseTimer drops the per-file timer entry deterministically.
func (w *LocalWatcher) releaseTimer(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[name]; ok {
		timer.Stop()
		delete(w.timers, name)
	}
}

// stopTimers releases every outstanding debounce timer.
func (w *LocalWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, timer := range w.timers {
		timer.Stop()
		delete(w.timers, name)
	}
}
