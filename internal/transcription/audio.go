package transcription

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// audioExtensions is the accepted recording format allow-list.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".webm": true,
	".aac":  true,
	".wma":  true,
	".caf":  true,
}

// ValidateAudioFormat checks if the file format is supported.
func ValidateAudioFormat(filename string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(filename))]
}

// NormalizeAudio converts any audio file to 16kHz mono WAV in tempDir.
func NormalizeAudio(ctx context.Context, inputPath, tempDir string) (string, error) {
	outputPath := filepath.Join(tempDir, fmt.Sprintf("normalized_%s.wav", uuid.New().String()))

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %w\noutput: %s", err, string(output))
	}
	return outputPath, nil
}

// ProbeDuration asks ffprobe for the recording length in seconds. A probe
// failure is not fatal; callers fall back to segment timestamps.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", strings.TrimSpace(string(output)), err)
	}
	return seconds, nil
}
