package types

import "time"

// Status tracks where a recording sits in the cross-device pipeline.
// The capture device owns the transitions up to queued; the processing
// device owns downloading onward.
type Status string

const (
	StatusUploading    Status = "uploading"
	StatusPending      Status = "pending"
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether a status needs no further processing.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RecordingMetadata is the shared per-recording record, persisted as
// <name>.json next to the audio blob in the synced folder. Both devices
// read the whole record; each writes only the fields it owns, but saves
// are whole-record so the last writer wins.
type RecordingMetadata struct {
	AudioFileName         string     `json:"audioFileName"`
	Title                 string     `json:"title,omitempty"`
	Tags                  []string   `json:"tags,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	PromptPrefix          string     `json:"promptPrefix,omitempty"`
	Status                Status     `json:"status"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	LastAttemptedAt       *time.Time `json:"lastAttemptedAt,omitempty"`
	ErrorMessage          *string    `json:"errorMessage,omitempty"`
	TranscriptionFileName *string    `json:"transcriptionFileName,omitempty"`
	Marks                 []float64  `json:"marks,omitempty"`
	Duration              float64    `json:"duration,omitempty"`
	CreatedOnDevice       string     `json:"createdOnDevice,omitempty"`
	TranscribedOnDevice   string     `json:"transcribedOnDevice,omitempty"`
}

// NewRecordingMetadata creates a pending record for a freshly seen audio file.
func NewRecordingMetadata(audioFileName, device string) *RecordingMetadata {
	now := time.Now().UTC()
	return &RecordingMetadata{
		AudioFileName:   audioFileName,
		Title:           audioFileName,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedOnDevice: device,
	}
}

// SetStatus moves the record to a non-terminal status and clears any stale
// error so the errorMessage<=>failed invariant holds.
func (m *RecordingMetadata) SetStatus(s Status) {
	m.Status = s
	if s != StatusFailed {
		m.ErrorMessage = nil
	}
	m.UpdatedAt = time.Now().UTC()
}

// SetFailed marks the record failed with a user-facing reason.
func (m *RecordingMetadata) SetFailed(reason string) {
	m.Status = StatusFailed
	m.ErrorMessage = &reason
	m.UpdatedAt = time.Now().UTC()
}

// SetCompleted marks the record completed and points it at the transcript.
func (m *RecordingMetadata) SetCompleted(transcriptFileName, device string) {
	m.Status = StatusCompleted
	m.ErrorMessage = nil
	m.TranscriptionFileName = &transcriptFileName
	m.TranscribedOnDevice = device
	m.UpdatedAt = time.Now().UTC()
}

// MarkAttempt stamps the time a transcription attempt started.
func (m *RecordingMetadata) MarkAttempt() {
	now := time.Now().UTC()
	m.LastAttemptedAt = &now
	m.UpdatedAt = now
}

// ClearFailure resets a failed record for an explicit user retry.
func (m *RecordingMetadata) ClearFailure() {
	m.Status = StatusPending
	m.ErrorMessage = nil
	m.LastAttemptedAt = nil
	m.UpdatedAt = time.Now().UTC()
}

// TaskStatus is the lifecycle of an in-memory queue task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TranscriptionTask is the worker-side view of one queued recording. It is
// never persisted; crashed tasks are repaired from metadata by the
// reconciler instead.
type TranscriptionTask struct {
	ID            string     `json:"id"`
	AudioFileName string     `json:"audioFileName"`
	AudioPath     string     `json:"audioPath"`
	OutputPath    string     `json:"outputPath,omitempty"`
	Source        string     `json:"source"`
	Status        TaskStatus `json:"status"`
	Progress      float64    `json:"progress"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Source values for queue entries.
const (
	SourceLocal  = "local"
	SourceShared = "shared"
	SourcePoll   = "poll"
	SourceManual = "manual"
)

// Segment is one time-coded span of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the output of one engine invocation.
type TranscriptionResult struct {
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Duration  float64   `json:"duration"`
	Segments  []Segment `json:"segments"`
	WordCount int       `json:"wordCount"`
}

// Heartbeat is the liveness record the processing device writes to the
// shared store.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
}
