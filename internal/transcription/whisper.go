package transcription

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/voicebridge/voicebridge/internal/types"
)

// Options tune a single transcription run.
type Options struct {
	Language     string
	PromptPrefix string
}

// ProgressFunc receives coarse progress in the range 0.0 to 1.0.
type ProgressFunc func(progress float64)

// Engine is the narrow contract the queue consumes. Implementations are not
// required to be reentrant-safe; the queue never runs two calls at once.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, opts Options, onProgress ProgressFunc) (*types.TranscriptionResult, error)
}

// WhisperEngine wraps Python's OpenAI Whisper CLI. The model stays loaded in
// the child process per run; memory pressure is why only one run may be
// active, which the internal mutex backstops.
type WhisperEngine struct {
	command string
	model   string
	threads int
	tempDir string
	mu      sync.Mutex
}

// NewWhisperEngine creates an engine invoking `<command> -m whisper`.
func NewWhisperEngine(command, model string, threads int, tempDir string) *WhisperEngine {
	if command == "" {
		command = "python"
	}
	log.Printf("whisper engine ready (model: %s, via: %s -m whisper)", model, command)
	return &WhisperEngine{
		command: command,
		model:   model,
		threads: threads,
		tempDir: tempDir,
	}
}

// Transcribe normalizes the audio, runs whisper, and parses its JSON output.
// Cancelling the context kills the child process and returns ctx.Err().
func (w *WhisperEngine) Transcribe(ctx context.Context, audioPath string, opts Options, onProgress ProgressFunc) (*types.TranscriptionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	workDir, err := os.MkdirTemp(w.tempDir, "whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	normalized, err := NormalizeAudio(ctx, audioPath, workDir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Categorize(err, err.Error())
	}

	duration, err := ProbeDuration(ctx, normalized)
	if err != nil {
		log.Printf("duration probe failed for %s: %v", filepath.Base(audioPath), err)
		duration = 0
	}

	args := buildWhisperArgs(normalized, w.model, workDir, opts)
	cmd := exec.CommandContext(ctx, w.command, args...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("OMP_NUM_THREADS=%d", w.threads))

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	tail := newTailBuffer(40)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.Add(line)
			if onProgress == nil || duration <= 0 {
				continue
			}
			if end, ok := parseSegmentEnd(line); ok {
				progress := end / duration
				if progress > 1 {
					progress = 1
				}
				onProgress(progress)
			}
		}
	}()

	runErr := cmd.Run()
	pw.Close()
	<-scanDone

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Categorize(runErr, tail.String())
	}

	baseName := strings.TrimSuffix(filepath.Base(normalized), filepath.Ext(normalized))
	jsonPath := filepath.Join(workDir, baseName+".json")
	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, Categorize(fmt.Errorf("whisper completed but output is missing: %w", err), tail.String())
	}

	result, err := parseWhisperOutput(jsonData)
	if err != nil {
		return nil, Categorize(err, tail.String())
	}
	if result.Duration == 0 {
		result.Duration = duration
	}
	if onProgress != nil {
		onProgress(1)
	}

	log.Printf("transcription completed: %d segments, %.2fs duration", len(result.Segments), result.Duration)
	return result, nil
}

// buildWhisperArgs builds the `python -m whisper` invocation.
func buildWhisperArgs(audioPath, model, outputDir string, opts Options) []string {
	args := []string{
		"-m", "whisper",
		audioPath,
		"--model", model,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--fp16", "False",
		"--verbose", "True",
	}
	if lang := strings.TrimSpace(opts.Language); lang != "" && !strings.EqualFold(lang, "auto") {
		args = append(args, "--language", lang)
	}
	if prompt := strings.TrimSpace(opts.PromptPrefix); prompt != "" {
		args = append(args, "--initial_prompt", prompt)
	}
	return args
}

// whisperOutput matches Python Whisper's JSON output format.
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// parseWhisperOutput converts whisper JSON into a TranscriptionResult.
func parseWhisperOutput(data []byte) (*types.TranscriptionResult, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper JSON: %w", err)
	}

	segments := make([]types.Segment, len(out.Segments))
	for i, seg := range out.Segments {
		segments[i] = types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	var duration float64
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}

	text := strings.TrimSpace(out.Text)
	return &types.TranscriptionResult{
		Text:      text,
		Language:  out.Language,
		Duration:  duration,
		Segments:  segments,
		WordCount: len(strings.Fields(text)),
	}, nil
}

// Whisper prints one line per decoded segment, e.g.
// [01:10.480 --> 01:15.220]  some text
var segmentLineRe = regexp.MustCompile(`-->\s*(\d{1,2}:)?(\d{1,2}):(\d{1,2})(?:\.(\d{1,3}))?\]`)

// parseSegmentEnd extracts the end timestamp in seconds from a segment line.
func parseSegmentEnd(line string) (float64, bool) {
	m := segmentLineRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours := 0.0
	if m[1] != "" {
		h, err := strconv.Atoi(strings.TrimSuffix(m[1], ":"))
		if err != nil {
			return 0, false
		}
		hours = float64(h)
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[3])
	if err != nil {
		return 0, false
	}
	millis := 0.0
	if m[4] != "" {
		frac, err := strconv.ParseFloat("0."+m[4], 64)
		if err != nil {
			return 0, false
		}
		millis = frac
	}
	return hours*3600 + float64(minutes)*60 + float64(seconds) + millis, true
}

// tailBuffer keeps the last N lines of child output for error reporting.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
