package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// TestLoadMissingReturnsNil verifies that an absent record is not an error.
func TestLoadMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)

	meta, err := s.Load("nope.m4a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta != nil {
		t.Fatalf("Load() = %+v, want nil", meta)
	}
}

// TestSaveLoadRoundTrip checks persisted metadata fidelity field-for-field.
func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	attempted := time.Date(2025, 8, 30, 10, 0, 0, 0, time.UTC)
	errMsg := "unknown: transcription failed"
	transcript := "memo.txt"
	want := &types.RecordingMetadata{
		AudioFileName:         "memo.m4a",
		Title:                 "Standup notes",
		Tags:                  []string{"work", "standup"},
		Notes:                 "recorded on the walk in",
		PromptPrefix:          "Names: Priya, Tomas",
		Status:                types.StatusFailed,
		CreatedAt:             time.Date(2025, 8, 30, 9, 0, 0, 0, time.UTC),
		UpdatedAt:             time.Date(2025, 8, 30, 10, 1, 0, 0, time.UTC),
		LastAttemptedAt:       &attempted,
		ErrorMessage:          &errMsg,
		TranscriptionFileName: &transcript,
		Marks:                 []float64{1.5, 63.2, 190},
		Duration:              245.7,
		CreatedOnDevice:       "phone",
		TranscribedOnDevice:   "desktop",
	}

	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load("memo.m4a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

// TestSaveOverwritesWholeRecord checks last-write-wins semantics.
func TestSaveOverwritesWholeRecord(t *testing.T) {
	s := newTestStore(t)

	first := types.NewRecordingMetadata("memo.m4a", "phone")
	first.Notes = "original notes"
	if err := s.Save(first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := types.NewRecordingMetadata("memo.m4a", "desktop")
	if err := s.Save(second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load("memo.m4a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Notes != "" || got.CreatedOnDevice != "desktop" {
		t.Fatalf("expected full overwrite, got %+v", got)
	}
}

// TestSiblingNames checks the shared-folder naming convention.
func TestSiblingNames(t *testing.T) {
	if got := MetadataFileName("memo.m4a"); got != "memo.json" {
		t.Fatalf("MetadataFileName = %q, want memo.json", got)
	}
	if got := TranscriptFileName("memo.m4a"); got != "memo.txt" {
		t.Fatalf("TranscriptFileName = %q, want memo.txt", got)
	}
	if got := BaseName("a.b.wav"); got != "a.b" {
		t.Fatalf("BaseName = %q, want a.b", got)
	}
}

// TestTranscriptLifecycle covers write, read, presence, and delete.
func TestTranscriptLifecycle(t *testing.T) {
	s := newTestStore(t)

	if s.HasTranscript("memo.m4a") {
		t.Fatal("unexpected transcript before write")
	}

	name, err := s.WriteTranscript("memo.m4a", "hello world")
	if err != nil {
		t.Fatalf("WriteTranscript() error = %v", err)
	}
	if name != "memo.txt" {
		t.Fatalf("transcript name = %q, want memo.txt", name)
	}
	if !s.HasTranscript("memo.m4a") {
		t.Fatal("expected transcript after write")
	}

	text, err := s.ReadTranscript("memo.m4a")
	if err != nil {
		t.Fatalf("ReadTranscript() error = %v", err)
	}
	if text != "hello world" {
		t.Fatalf("transcript text = %q", text)
	}

	if err := s.DeleteTranscript("memo.m4a"); err != nil {
		t.Fatalf("DeleteTranscript() error = %v", err)
	}
	if s.HasTranscript("memo.m4a") {
		t.Fatal("transcript still present after delete")
	}
	// Deleting again must not error.
	if err := s.DeleteTranscript("memo.m4a"); err != nil {
		t.Fatalf("second DeleteTranscript() error = %v", err)
	}
}

// TestListMetadataSkipsNonRecords verifies heartbeat and junk are ignored.
func TestListMetadataSkipsNonRecords(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(types.NewRecordingMetadata("a.m4a", "phone")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(types.NewRecordingMetadata("b.wav", "phone")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := os.WriteFile(s.HeartbeatPath(), []byte(`{"timestamp":"2025-08-30T10:00:00Z","device":"desktop"}`), 0644); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	metas, err := s.ListMetadata()
	if err != nil {
		t.Fatalf("ListMetadata() error = %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("ListMetadata() returned %d records, want 2", len(metas))
	}
}

// TestImportAudio copies an outside file into the shared folder.
func TestImportAudio(t *testing.T) {
	s := newTestStore(t)

	src := filepath.Join(t.TempDir(), "upload.tmp")
	if err := os.WriteFile(src, []byte("audio-bytes"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := s.ImportAudio(src, "memo.m4a"); err != nil {
		t.Fatalf("ImportAudio() error = %v", err)
	}
	if !s.HasAudio("memo.m4a") {
		t.Fatal("expected audio after import")
	}
	if size := s.AudioSize("memo.m4a"); size != int64(len("audio-bytes")) {
		t.Fatalf("AudioSize = %d", size)
	}
}
