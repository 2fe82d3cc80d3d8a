package transcription

import (
	"fmt"
	"strings"
)

// ErrorCategory buckets engine failures so the queue can produce a
// user-meaningful message without understanding whisper internals.
type ErrorCategory string

const (
	CategoryResource     ErrorCategory = "resource"
	CategoryCorruptInput ErrorCategory = "corrupt-input"
	CategoryUnknown      ErrorCategory = "unknown"
)

// EngineError is a categorized transcription failure.
type EngineError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

// Error formats the failure for logs and metadata errorMessage.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

var resourceMarkers = []string{
	"out of memory",
	"cannot allocate memory",
	"cuda out of memory",
	"memoryerror",
	"signal: killed",
	"failed to load model",
}

var corruptMarkers = []string{
	"invalid data found",
	"could not decode",
	"error opening input",
	"does not contain any stream",
	"end of file",
	"corrupt",
	"unsupported codec",
	"invalid argument",
}

// Categorize wraps an engine failure with a category derived from the
// child-process output.
func Categorize(err error, output string) *EngineError {
	haystack := strings.ToLower(output + " " + err.Error())

	for _, marker := range resourceMarkers {
		if strings.Contains(haystack, marker) {
			return &EngineError{
				Category: CategoryResource,
				Message:  "transcription engine ran out of resources",
				Err:      err,
			}
		}
	}
	for _, marker := range corruptMarkers {
		if strings.Contains(haystack, marker) {
			return &EngineError{
				Category: CategoryCorruptInput,
				Message:  "audio file could not be decoded",
				Err:      err,
			}
		}
	}
	return &EngineError{
		Category: CategoryUnknown,
		Message:  "transcription failed: " + firstLine(err.Error()),
		Err:      err,
	}
}

// firstLine trims multi-line process output down to something displayable.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
