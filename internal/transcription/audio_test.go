package transcription

import "testing"

// TestValidateAudioFormat checks the extension allow-list, case-insensitive.
func TestValidateAudioFormat(t *testing.T) {
	accepted := []string{"memo.m4a", "memo.MP3", "voice.wav", "a.opus", "b.flac", "c.webm", "d.CAF"}
	for _, name := range accepted {
		if !ValidateAudioFormat(name) {
			t.Errorf("ValidateAudioFormat(%q) = false, want true", name)
		}
	}

	rejected := []string{"memo.txt", "memo.json", "memo", "archive.zip", "video.mp4", ".m4a.backup"}
	for _, name := range rejected {
		if ValidateAudioFormat(name) {
			t.Errorf("ValidateAudioFormat(%q) = true, want false", name)
		}
	}
}
