package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/internal/events"
	"github.com/voicebridge/voicebridge/internal/notify"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/transcription"
	"github.com/voicebridge/voicebridge/internal/types"
)

// ErrNoActiveTask is returned when cancel is requested while idle.
var ErrNoActiveTask = errors.New("no active task")

// ErrTaskActive is returned when removing the task currently running.
var ErrTaskActive = errors.New("task is active; cancel it instead")

// ErrNotFailed is returned when retrying a recording that has not failed.
var ErrNotFailed = errors.New("recording is not in failed state")

// historyLimit bounds the completed-task history.
const historyLimit = 50

// Indexer receives finalized transcripts for search indexing. The queue only
// writes to it, never reads.
type Indexer interface {
	Add(meta *types.RecordingMetadata, result *types.TranscriptionResult, transcriptPath string) error
}

// Mirror uploads finished transcripts to remote storage. Failures must not
// fail the job.
type Mirror interface {
	Upload(audioFileName string, meta *types.RecordingMetadata, result *types.TranscriptionResult) (string, error)
}

// Config tunes queue behavior.
type Config struct {
	Device               string
	Language             string
	DeleteSourceAudio    bool
	DownloadWait         time.Duration
	DownloadPollInterval time.Duration
}

// Queue is the single-flight transcription queue. Every entry point (local
// watcher, shared-store watcher, manual submission) funnels through Enqueue,
// and one drain loop processes one recording at a time because the engine
// cannot safely run two transcriptions concurrently.
type Queue struct {
	cfg        Config
	store      *store.Store
	state      *store.StateFile
	engine     transcription.Engine
	bus        *events.Bus
	dispatcher notify.Dispatcher
	index      Indexer
	mirror     Mirror

	mu           sync.Mutex
	pending      []*types.TranscriptionTask
	active       *types.TranscriptionTask
	history      []*types.TranscriptionTask
	cancelActive context.CancelFunc
	wake         chan struct{}
}

// New creates a queue. Index and mirror may be nil.
func New(cfg Config, st *store.Store, state *store.StateFile, engine transcription.Engine, bus *events.Bus, dispatcher notify.Dispatcher, index Indexer, mirror Mirror) *Queue {
	if cfg.DownloadWait == 0 {
		cfg.DownloadWait = 90 * time.Second
	}
	if cfg.DownloadPollInterval == 0 {
		cfg.DownloadPollInterval = 2 * time.Second
	}
	return &Queue{
		cfg:        cfg,
		store:      st,
		state:      state,
		engine:     engine,
		bus:        bus,
		dispatcher: dispatcher,
		index:      index,
		mirror:     mirror,
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue adds a recording to the queue. It is idempotent: a recording that
// is already queued or active is a no-op. The shared metadata record, when
// present, decides whether the recording still needs work.
func (q *Queue) Enqueue(audioFileName, audioPath, source string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state.IsIgnored(audioFileName) {
		return nil
	}
	if q.isTrackedLocked(audioFileName) {
		return nil
	}

	meta, err := q.store.Load(audioFileName)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", audioFileName, err)
	}

	if meta != nil {
		switch meta.Status {
		case types.StatusCompleted:
			if err := q.state.MarkProcessed(audioFileName); err != nil {
				log.Printf("queue: mark processed %s: %v", audioFileName, err)
			}
			return nil
		case types.StatusFailed:
			// Failures stay terminal until an explicit user retry.
			return nil
		case types.StatusTranscribing:
			// Transcribing on record but nothing running here: an earlier
			// run was interrupted. Reset so the record reflects reality.
			meta.SetStatus(types.StatusPending)
			if err := q.store.Save(meta); err != nil {
				return fmt.Errorf("reset interrupted %s: %w", audioFileName, err)
			}
		}
		if meta.Status == types.StatusPending {
			meta.SetStatus(types.StatusQueued)
			if err := q.store.Save(meta); err != nil {
				return fmt.Errorf("mark queued %s: %w", audioFileName, err)
			}
		}
	} else {
		meta = types.NewRecordingMetadata(audioFileName, q.cfg.Device)
		meta.SetStatus(types.StatusQueued)
		if err := q.store.Save(meta); err != nil {
			return fmt.Errorf("create metadata %s: %w", audioFileName, err)
		}
	}

	if audioPath == "" {
		audioPath = q.store.AudioPath(audioFileName)
	}
	task := &types.TranscriptionTask{
		ID:            uuid.New().String(),
		AudioFileName: audioFileName,
		AudioPath:     audioPath,
		Source:        source,
		Status:        types.TaskPending,
		CreatedAt:     time.Now().UTC(),
	}
	q.pending = append(q.pending, task)
	log.Printf("queue: enqueued %s (source: %s)", audioFileName, source)
	q.publish(events.Event{Type: events.TypeQueued, AudioFileName: audioFileName, Title: meta.Title})

	q.signal()
	return nil
}

// Cancel aborts the active task. Cleanup (partial transcript removal,
// metadata flip) happens in the drain loop's cancellation handler.
func (q *Queue) Cancel() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active == nil || q.cancelActive == nil {
		return ErrNoActiveTask
	}
	q.cancelActive()
	return nil
}

// Remove drops a queued (not active) recording from the queue.
func (q *Queue) Remove(audioFileName string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active != nil && q.active.AudioFileName == audioFileName {
		return ErrTaskActive
	}
	for i, task := range q.pending {
		if task.AudioFileName == audioFileName {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("recording %s is not queued", audioFileName)
}

// Reorder rearranges queued items to match the given name order. Names not
// currently queued are ignored; queued items not named keep their relative
// order after the named ones. The active task is untouched.
func (q *Queue) Reorder(names []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	byName := make(map[string]*types.TranscriptionTask, len(q.pending))
	for _, task := range q.pending {
		byName[task.AudioFileName] = task
	}

	reordered := make([]*types.TranscriptionTask, 0, len(q.pending))
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		if task, ok := byName[name]; ok && !taken[name] {
			reordered = append(reordered, task)
			taken[name] = true
		}
	}
	for _, task := range q.pending {
		if !taken[task.AudioFileName] {
			reordered = append(reordered, task)
		}
	}
	q.pending = reordered
}

// Retry clears a failed recording and re-enqueues it through the normal
// path. Only explicitly failed recordings can be retried.
func (q *Queue) Retry(audioFileName string) error {
	meta, err := q.store.Load(audioFileName)
	if err != nil {
		return fmt.Errorf("retry %s: %w", audioFileName, err)
	}
	if meta == nil || meta.Status != types.StatusFailed {
		return ErrNotFailed
	}

	meta.ClearFailure()
	if err := q.store.Save(meta); err != nil {
		return fmt.Errorf("retry %s: %w", audioFileName, err)
	}
	if err := q.state.ClearProcessed(audioFileName); err != nil {
		log.Printf("queue: clear processed %s: %v", audioFileName, err)
	}
	return q.Enqueue(audioFileName, "", types.SourceManual)
}

// Ignore permanently excludes a recording: added to the ignore-list and
// removed from the queue; an active run is cancelled.
func (q *Queue) Ignore(audioFileName string) error {
	if err := q.state.Ignore(audioFileName); err != nil {
		return fmt.Errorf("ignore %s: %w", audioFileName, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, task := range q.pending {
		if task.AudioFileName == audioFileName {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	if q.active != nil && q.active.AudioFileName == audioFileName && q.cancelActive != nil {
		q.cancelActive()
	}
	return nil
}

// IsActive reports whether a recording is the currently running task. The
// reconciler uses it to tell stuck records from live ones.
func (q *Queue) IsActive(audioFileName string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active != nil && q.active.AudioFileName == audioFileName
}

// Snapshot is a point-in-time copy of queue state for the HTTP layer.
type Snapshot struct {
	Active  *types.TranscriptionTask  `json:"active,omitempty"`
	Pending []types.TranscriptionTask `json:"pending"`
	History []types.TranscriptionTask `json:"history"`
}

// Snapshot copies the active task, queued items, and completed history.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{
		Pending: make([]types.TranscriptionTask, 0, len(q.pending)),
		History: make([]types.TranscriptionTask, 0, len(q.history)),
	}
	if q.active != nil {
		active := *q.active
		snap.Active = &active
	}
	for _, task := range q.pending {
		snap.Pending = append(snap.Pending, *task)
	}
	for _, task := range q.history {
		snap.History = append(snap.History, *task)
	}
	return snap
}

// isTrackedLocked reports whether a recording is queued or active; callers
// hold the lock.
func (q *Queue) isTrackedLocked(audioFileName string) bool {
	if q.active != nil && q.active.AudioFileName == audioFileName {
		return true
	}
	for _, task := range q.pending {
		if task.AudioFileName == audioFileName {
			return true
		}
	}
	return false
}

// signal wakes the drain loop; callers hold the lock.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// publish forwards an event to the bus when one is configured.
func (q *Queue) publish(event events.Event) {
	if q.bus != nil {
		q.bus.Publish(event)
	}
}

// finishTask moves a task into the bounded history; callers hold the lock.
func (q *Queue) finishTaskLocked(task *types.TranscriptionTask, status types.TaskStatus, reason string) {
	now := time.Now().UTC()
	task.Status = status
	task.FailureReason = reason
	task.CompletedAt = &now

	q.history = append(q.history, task)
	if len(q.history) > historyLimit {
		q.history = append([]*types.TranscriptionTask(nil), q.history[len(q.history)-historyLimit:]...)
	}
	if q.active == task {
		q.active = nil
		q.cancelActive = nil
	}
}
