package transcription

import (
	"errors"
	"strings"
	"testing"
)

// TestCategorize buckets failures by the markers in process output.
func TestCategorize(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		output string
		want   ErrorCategory
	}{
		{"oom in output", errors.New("exit status 1"), "RuntimeError: CUDA out of memory", CategoryResource},
		{"killed by oom killer", errors.New("signal: killed"), "", CategoryResource},
		{"model load failure", errors.New("exit status 1"), "failed to load model small", CategoryResource},
		{"ffmpeg decode failure", errors.New("exit status 1"), "Invalid data found when processing input", CategoryCorruptInput},
		{"truncated file", errors.New("exit status 1"), "av_read_frame(): End of file", CategoryCorruptInput},
		{"unknown", errors.New("exit status 2"), "Traceback (most recent call last)", CategoryUnknown},
	}

	for _, tc := range cases {
		got := Categorize(tc.err, tc.output)
		if got.Category != tc.want {
			t.Errorf("%s: category = %s, want %s", tc.name, got.Category, tc.want)
		}
		if !errors.Is(got, tc.err) {
			t.Errorf("%s: wrapped error lost", tc.name)
		}
	}
}

// TestCategorizeUnknownMessage truncates noisy output to one line.
func TestCategorizeUnknownMessage(t *testing.T) {
	cause := errors.New("first line of the failure\nsecond line\nthird line")
	got := Categorize(cause, "")
	if strings.Contains(got.Error(), "second line") {
		t.Fatalf("message not trimmed to first line: %q", got.Error())
	}
	if !strings.Contains(got.Error(), "first line of the failure") {
		t.Fatalf("message dropped the cause: %q", got.Error())
	}
}
