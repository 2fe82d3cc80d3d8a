package transcription

import (
	"testing"
)

// TestParseSegmentEnd covers the timestamp formats whisper prints.
func TestParseSegmentEnd(t *testing.T) {
	cases := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[00:00.000 --> 00:04.500]  hello there", 4.5, true},
		{"[01:10.480 --> 01:15.220]  more text", 75.22, true},
		{"[1:01:10.480 --> 1:01:15.220]  hour mark", 3675.22, true},
		{"[00:12 --> 00:30]  no millis", 30, true},
		{"Detecting language using up to the first 30 seconds.", 0, false},
		{"100%|██████████| 139M/139M", 0, false},
		{"", 0, false},
	}

	for _, tc := range cases {
		got, ok := parseSegmentEnd(tc.line)
		if ok != tc.ok {
			t.Errorf("parseSegmentEnd(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if tc.ok && (got < tc.want-0.001 || got > tc.want+0.001) {
			t.Errorf("parseSegmentEnd(%q) = %f, want %f", tc.line, got, tc.want)
		}
	}
}

// TestBuildWhisperArgs checks optional flags are only added when set.
func TestBuildWhisperArgs(t *testing.T) {
	args := buildWhisperArgs("/tmp/a.wav", "small", "/tmp/out", Options{})
	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	for _, want := range []string{"-m", "whisper", "/tmp/a.wav", "--model", "small", "--output_format", "json", "--fp16"} {
		found := false
		for _, a := range args {
			if a == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	for _, a := range args {
		if a == "--language" || a == "--initial_prompt" {
			t.Errorf("unexpected flag %q with empty options", a)
		}
	}

	args = buildWhisperArgs("/tmp/a.wav", "small", "/tmp/out", Options{Language: "en", PromptPrefix: "Meeting notes"})
	hasLang, hasPrompt := false, false
	for i, a := range args {
		if a == "--language" && i+1 < len(args) && args[i+1] == "en" {
			hasLang = true
		}
		if a == "--initial_prompt" && i+1 < len(args) && args[i+1] == "Meeting notes" {
			hasPrompt = true
		}
	}
	if !hasLang || !hasPrompt {
		t.Fatalf("language/prompt flags missing: %v", args)
	}

	// "auto" means let whisper detect; no flag.
	args = buildWhisperArgs("/tmp/a.wav", "small", "/tmp/out", Options{Language: "auto"})
	for _, a := range args {
		if a == "--language" {
			t.Fatal("--language passed for auto detection")
		}
	}
}

// TestParseWhisperOutput parses the JSON whisper writes next to the audio.
func TestParseWhisperOutput(t *testing.T) {
	data := []byte(`{
		"text": "  hello world. second segment here.  ",
		"language": "en",
		"segments": [
			{"id": 0, "start": 0.0, "end": 4.2, "text": " hello world."},
			{"id": 1, "start": 4.2, "end": 9.8, "text": " second segment here."}
		]
	}`)

	result, err := parseWhisperOutput(data)
	if err != nil {
		t.Fatalf("parseWhisperOutput() error = %v", err)
	}
	if result.Text != "hello world. second segment here." {
		t.Errorf("text = %q", result.Text)
	}
	if result.Language != "en" {
		t.Errorf("language = %q", result.Language)
	}
	if len(result.Segments) != 2 || result.Segments[1].Text != "second segment here." {
		t.Errorf("segments = %+v", result.Segments)
	}
	if result.Duration != 9.8 {
		t.Errorf("duration = %f, want 9.8", result.Duration)
	}
	if result.WordCount != 5 {
		t.Errorf("wordCount = %d, want 5", result.WordCount)
	}

	if _, err := parseWhisperOutput([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// TestTailBuffer keeps only the newest lines.
func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(3)
	for _, line := range []string{"one", "two", "three", "four", "five"} {
		tb.Add(line)
	}
	if got := tb.String(); got != "three\nfour\nfive" {
		t.Fatalf("tail = %q", got)
	}
}
