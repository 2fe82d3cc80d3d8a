package watch

import (
	"os"
	"testing"

	"github.com/voicebridge/voicebridge/internal/types"
)

func (e *watchEnv) saveMeta(t *testing.T, meta *types.RecordingMetadata) {
	t.Helper()
	if err := e.store.Save(meta); err != nil {
		t.Fatalf("Save(%s) error = %v", meta.AudioFileName, err)
	}
}

// TestSharedRescanInitialGather classifies a mixed folder: terminal records
// are only marked processed, live ones are enqueued exactly once.
func TestSharedRescanInitialGather(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	done := types.NewRecordingMetadata("done.m4a", "phone")
	done.SetCompleted("done.txt", "desktop")
	e.saveMeta(t, done)
	if _, err := e.store.WriteTranscript("done.m4a", "finished text"); err != nil {
		t.Fatalf("WriteTranscript() error = %v", err)
	}

	failed := types.NewRecordingMetadata("bad.m4a", "phone")
	failed.SetFailed("engine exploded")
	e.saveMeta(t, failed)

	e.saveMeta(t, types.NewRecordingMetadata("fresh.m4a", "phone"))

	w.Rescan(types.SourceShared)

	calls := e.sink.snapshot()
	if len(calls) != 1 {
		t.Fatalf("enqueue calls = %d, want 1: %+v", len(calls), calls)
	}
	if calls[0].name != "fresh.m4a" || calls[0].source != types.SourceShared {
		t.Fatalf("call = %+v", calls[0])
	}
	if !e.state.IsProcessed("done.m4a") {
		t.Error("completed record not marked processed")
	}
	if !e.state.IsProcessed("bad.m4a") {
		t.Error("failed record not marked processed")
	}
	if e.state.IsProcessed("fresh.m4a") {
		t.Error("live record wrongly marked processed")
	}
}

// TestSharedRescanDeduplicates repeats the scan and expects no extra calls.
func TestSharedRescanDeduplicates(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	e.saveMeta(t, types.NewRecordingMetadata("fresh.m4a", "phone"))

	w.Rescan(types.SourceShared)
	w.Rescan(types.SourcePoll)
	w.Rescan(types.SourcePoll)

	if calls := e.sink.snapshot(); len(calls) != 1 {
		t.Fatalf("enqueue calls = %d, want 1: %+v", len(calls), calls)
	}
}

// TestSharedStatusChangeRenotifies: a metadata change is a new logical event
// for the same recording and must come through again.
func TestSharedStatusChangeRenotifies(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	// First sighting: audio blob with no metadata yet.
	if err := os.WriteFile(e.store.AudioPath("memo.m4a"), []byte("audio"), 0644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	w.handleFile("memo.m4a", types.SourceShared)
	if calls := e.sink.snapshot(); len(calls) != 1 {
		t.Fatalf("enqueue calls after audio = %d, want 1", len(calls))
	}

	// Metadata lands afterwards; the state signature changed.
	e.saveMeta(t, types.NewRecordingMetadata("memo.m4a", "phone"))
	w.handleFile("memo.json", types.SourceShared)
	if calls := e.sink.snapshot(); len(calls) != 2 {
		t.Fatalf("enqueue calls after metadata = %d, want 2", len(calls))
	}

	// Same state again: deduplicated.
	w.handleFile("memo.json", types.SourceShared)
	if calls := e.sink.snapshot(); len(calls) != 2 {
		t.Fatalf("enqueue calls after repeat = %d, want 2", len(calls))
	}
}

// TestSharedTranscriptArrivalMarksProcessed resolves a transcript through its
// metadata sibling and closes out the recording.
func TestSharedTranscriptArrivalMarksProcessed(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	meta := types.NewRecordingMetadata("memo.m4a", "phone")
	meta.SetCompleted("memo.txt", "desktop")
	e.saveMeta(t, meta)
	if _, err := e.store.WriteTranscript("memo.m4a", "the transcript"); err != nil {
		t.Fatalf("WriteTranscript() error = %v", err)
	}

	w.handleFile("memo.txt", types.SourceShared)

	if len(e.sink.snapshot()) != 0 {
		t.Fatal("completed recording was enqueued")
	}
	if !e.state.IsProcessed("memo.m4a") {
		t.Fatal("transcript arrival did not mark the recording processed")
	}
}

// TestSharedPendingAfterProcessedClearsMark covers the capture-device retry:
// the record regressing to pending reopens a recording we considered done.
func TestSharedPendingAfterProcessedClearsMark(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	if err := e.state.MarkProcessed("memo.m4a"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	e.saveMeta(t, types.NewRecordingMetadata("memo.m4a", "phone"))

	w.handleFile("memo.json", types.SourceShared)

	if e.state.IsProcessed("memo.m4a") {
		t.Fatal("processed mark not cleared for pending record")
	}
	calls := e.sink.snapshot()
	if len(calls) != 1 || calls[0].name != "memo.m4a" {
		t.Fatalf("enqueue calls = %+v, want one for memo.m4a", calls)
	}
}

// TestSharedDedupMapEvictsTerminalRecordings: once a recording is done the
// processed set owns it, and it must leave the in-memory dedup map so the map
// stays bounded by live work.
func TestSharedDedupMapEvictsTerminalRecordings(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	e.saveMeta(t, types.NewRecordingMetadata("memo.m4a", "phone"))
	w.Rescan(types.SourceShared)

	w.mu.Lock()
	_, tracked := w.notified["memo.m4a"]
	w.mu.Unlock()
	if !tracked {
		t.Fatal("live recording not tracked for dedup")
	}

	meta := types.NewRecordingMetadata("memo.m4a", "phone")
	meta.SetCompleted("memo.txt", "desktop")
	e.saveMeta(t, meta)
	if _, err := e.store.WriteTranscript("memo.m4a", "finished text"); err != nil {
		t.Fatalf("WriteTranscript() error = %v", err)
	}
	w.Rescan(types.SourcePoll)

	w.mu.Lock()
	_, tracked = w.notified["memo.m4a"]
	w.mu.Unlock()
	if tracked {
		t.Fatal("terminal recording still in the dedup map")
	}
	if !e.state.IsProcessed("memo.m4a") {
		t.Fatal("terminal recording not marked processed")
	}

	// Repeat sweeps stay quiet even without a map entry.
	w.Rescan(types.SourcePoll)
	if calls := e.sink.snapshot(); len(calls) != 1 {
		t.Fatalf("enqueue calls = %d, want 1", len(calls))
	}
}

// TestSharedSkipsInfrastructureFiles ignores the heartbeat and dotfiles.
func TestSharedSkipsInfrastructureFiles(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	w.handleFile("heartbeat.json", types.SourceShared)
	w.handleFile(".meta-123.tmp", types.SourceShared)
	w.handleFile(".hidden.json", types.SourceShared)

	if calls := e.sink.snapshot(); len(calls) != 0 {
		t.Fatalf("enqueue calls = %+v, want none", calls)
	}
}

// TestSharedIgnoredNeverEnqueued respects the ignore list on every path.
func TestSharedIgnoredNeverEnqueued(t *testing.T) {
	e := newWatchEnv(t)
	w := NewSharedWatcher(e.store, e.state, e.sink)

	if err := e.state.Ignore("junk.m4a"); err != nil {
		t.Fatalf("Ignore() error = %v", err)
	}
	e.saveMeta(t, types.NewRecordingMetadata("junk.m4a", "phone"))

	w.Rescan(types.SourceShared)

	if calls := e.sink.snapshot(); len(calls) != 0 {
		t.Fatalf("enqueue calls = %+v, want none", calls)
	}
}
