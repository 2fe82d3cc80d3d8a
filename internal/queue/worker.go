package queue

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/voicebridge/voicebridge/internal/events"
	"github.com/voicebridge/voicebridge/internal/transcription"
	"github.com/voicebridge/voicebridge/internal/types"
)

// Run is the drain loop. It owns the single-flight guarantee: exactly one
// goroutine calls it, and it processes one recording at a time no matter how
// many watchers enqueue concurrently. It returns when ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	log.Printf("queue: drain loop started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("queue: drain loop stopped")
			return
		case <-q.wake:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			task, taskCtx, release := q.takeNext(ctx)
			if task == nil {
				break
			}
			q.process(ctx, taskCtx, task)
			release()
		}
	}
}

// takeNext pops the head of the queue and makes it active. The returned
// release func must be called once processing ends to free the task context.
func (q *Queue) takeNext(ctx context.Context) (*types.TranscriptionTask, context.Context, context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil, nil
	}
	task := q.pending[0]
	q.pending = q.pending[1:]

	taskCtx, cancel := context.WithCancel(ctx)
	q.active = task
	q.cancelActive = cancel
	return task, taskCtx, cancel
}

// process runs one recording through validation, download wait, the engine,
// and result bookkeeping.
func (q *Queue) process(runCtx, taskCtx context.Context, task *types.TranscriptionTask) {
	name := task.AudioFileName

	// Conditions may have changed between enqueue and now; re-check and
	// skip quietly rather than surfacing an error for stale entries.
	if q.state.IsIgnored(name) {
		q.discard(task)
		return
	}
	if q.store.HasTranscript(name) {
		if err := q.state.MarkProcessed(name); err != nil {
			log.Printf("queue: mark processed %s: %v", name, err)
		}
		q.discard(task)
		return
	}

	if _, err := os.Stat(task.AudioPath); err != nil {
		if q.store.HasAudio(name) {
			q.mu.Lock()
			task.AudioPath = q.store.AudioPath(name)
			q.mu.Unlock()
		} else if !q.waitForDownload(taskCtx, task) {
			return
		}
	}

	meta, err := q.store.Load(name)
	if err != nil {
		log.Printf("queue: load metadata for %s: %v", name, err)
		q.discard(task)
		return
	}
	if meta == nil {
		meta = types.NewRecordingMetadata(name, q.cfg.Device)
	}
	meta.MarkAttempt()
	meta.SetStatus(types.StatusTranscribing)
	if err := q.store.Save(meta); err != nil {
		log.Printf("queue: save metadata for %s: %v", name, err)
		q.discard(task)
		return
	}

	q.mu.Lock()
	task.Status = types.TaskProcessing
	q.mu.Unlock()
	q.publish(events.Event{Type: events.TypeStarted, AudioFileName: name, Title: meta.Title})
	log.Printf("queue: transcribing %s", name)

	lastPublished := -1.0
	onProgress := func(p float64) {
		q.mu.Lock()
		task.Progress = p
		q.mu.Unlock()
		if p-lastPublished >= 0.05 || p >= 1 {
			lastPublished = p
			q.publish(events.Event{Type: events.TypeProgress, AudioFileName: name, Progress: p})
		}
	}

	opts := transcription.Options{
		Language:     q.cfg.Language,
		PromptPrefix: meta.PromptPrefix,
	}
	result, err := q.engine.Transcribe(taskCtx, task.AudioPath, opts, onProgress)
	if err != nil {
		if runCtx.Err() != nil {
			// Shutdown, not a user cancel. Leave the record in
			// transcribing; the reconciler repairs it on next launch.
			q.discard(task)
			return
		}
		if taskCtx.Err() != nil || errors.Is(err, context.Canceled) {
			q.handleCancelled(task, meta)
			return
		}
		q.handleFailed(task, meta, err)
		return
	}

	q.handleCompleted(task, meta, result)
}

// waitForDownload parks a recording whose metadata arrived before its audio
// finished syncing. It waits, bounded, for the blob to appear and hold a
// stable size. On timeout the record is reset to pending and left for the
// poll fallback; sync lag is not a failure.
func (q *Queue) waitForDownload(ctx context.Context, task *types.TranscriptionTask) bool {
	name := task.AudioFileName

	meta, err := q.store.Load(name)
	if err != nil || meta == nil {
		// No metadata and no audio: nothing to wait for.
		q.discard(task)
		return false
	}
	meta.SetStatus(types.StatusDownloading)
	if err := q.store.Save(meta); err != nil {
		log.Printf("queue: save metadata for %s: %v", name, err)
	}
	log.Printf("queue: waiting for %s to finish syncing", name)

	deadline := time.Now().Add(q.cfg.DownloadWait)
	lastSize := int64(-1)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			q.resetToPending(name)
			q.discard(task)
			return false
		case <-time.After(q.cfg.DownloadPollInterval):
		}

		size := q.store.AudioSize(name)
		if size > 0 && size == lastSize {
			q.mu.Lock()
			task.AudioPath = q.store.AudioPath(name)
			q.mu.Unlock()
			return true
		}
		lastSize = size
	}

	log.Printf("queue: gave up waiting for %s; will retry via poll", name)
	q.resetToPending(name)
	q.discard(task)
	return false
}

// handleCompleted writes the transcript and flips the shared record.
func (q *Queue) handleCompleted(task *types.TranscriptionTask, meta *types.RecordingMetadata, result *types.TranscriptionResult) {
	name := task.AudioFileName

	transcriptName, err := q.store.WriteTranscript(name, result.Text)
	if err != nil {
		q.handleFailed(task, meta, err)
		return
	}

	meta.SetCompleted(transcriptName, q.cfg.Device)
	if result.Duration > 0 {
		meta.Duration = result.Duration
	}
	if err := q.store.Save(meta); err != nil {
		log.Printf("queue: save metadata for %s: %v", name, err)
	}
	if err := q.state.MarkProcessed(name); err != nil {
		log.Printf("queue: mark processed %s: %v", name, err)
	}

	q.mu.Lock()
	task.OutputPath = q.store.TranscriptPath(name)
	task.Progress = 1
	q.finishTaskLocked(task, types.TaskCompleted, "")
	q.mu.Unlock()

	if q.dispatcher != nil {
		q.dispatcher.JobCompleted(name, meta.Title)
	}
	if q.index != nil {
		if err := q.index.Add(meta, result, q.store.TranscriptPath(name)); err != nil {
			log.Printf("queue: index %s: %v", name, err)
		}
	}
	if q.mirror != nil {
		q.mirrorWithRetry(name, meta, result)
	}
	if q.cfg.DeleteSourceAudio {
		if err := os.Remove(task.AudioPath); err != nil && !os.IsNotExist(err) {
			log.Printf("queue: delete source audio %s: %v", name, err)
		}
	}

	log.Printf("queue: completed %s (%d words)", name, result.WordCount)
}

// handleFailed marks the recording failed. Failures are terminal until an
// explicit user retry.
func (q *Queue) handleFailed(task *types.TranscriptionTask, meta *types.RecordingMetadata, cause error) {
	name := task.AudioFileName
	log.Printf("queue: transcription failed for %s: %v", name, cause)

	meta.SetFailed(cause.Error())
	if err := q.store.Save(meta); err != nil {
		log.Printf("queue: save metadata for %s: %v", name, err)
	}
	if err := q.state.MarkProcessed(name); err != nil {
		log.Printf("queue: mark processed %s: %v", name, err)
	}

	q.mu.Lock()
	q.finishTaskLocked(task, types.TaskFailed, cause.Error())
	q.mu.Unlock()

	if q.dispatcher != nil {
		q.dispatcher.JobFailed(name, meta.Title, cause.Error())
	}
}

// handleCancelled is the cancellation handler: any partial transcript is
// deleted so truncated output is never presented as genuine, the record is
// failed with a cancelled reason, and the recording is marked processed so
// the watchers do not immediately re-pick it up.
func (q *Queue) handleCancelled(task *types.TranscriptionTask, meta *types.RecordingMetadata) {
	name := task.AudioFileName
	log.Printf("queue: cancelled %s", name)

	if err := q.store.DeleteTranscript(name); err != nil {
		log.Printf("queue: delete partial transcript for %s: %v", name, err)
	}
	meta.SetFailed("cancelled")
	if err := q.store.Save(meta); err != nil {
		log.Printf("queue: save metadata for %s: %v", name, err)
	}
	if err := q.state.MarkProcessed(name); err != nil {
		log.Printf("queue: mark processed %s: %v", name, err)
	}

	q.mu.Lock()
	q.finishTaskLocked(task, types.TaskFailed, "cancelled")
	q.mu.Unlock()

	q.publish(events.Event{Type: events.TypeCancelled, AudioFileName: name, Title: meta.Title})
}

// mirrorWithRetry uploads to the configured mirror with backoff; mirror
// trouble never fails the job.
func (q *Queue) mirrorWithRetry(name string, meta *types.RecordingMetadata, result *types.TranscriptionResult) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		var url string
		url, err = q.mirror.Upload(name, meta, result)
		if err == nil {
			log.Printf("queue: mirrored %s to %s", name, url)
			return
		}
		log.Printf("queue: mirror attempt %d/3 for %s failed: %v", attempt, name, err)
		if attempt < 3 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
	}
	log.Printf("queue: mirror gave up for %s, transcript kept locally", name)
}

// resetToPending flips a record back to pending for a later attempt.
func (q *Queue) resetToPending(name string) {
	meta, err := q.store.Load(name)
	if err != nil || meta == nil {
		return
	}
	meta.SetStatus(types.StatusPending)
	if err := q.store.Save(meta); err != nil {
		log.Printf("queue: save metadata for %s: %v", name, err)
	}
}

// discard drops a task without recording history; used for entries that
// turned out to need no work.
func (q *Queue) discard(task *types.TranscriptionTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == task {
		q.active = nil
		q.cancelActive = nil
	}
}
