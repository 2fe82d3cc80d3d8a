package handlers

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/internal/queue"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/transcription"
	"github.com/voicebridge/voicebridge/internal/types"
)

// SubmitHandler accepts manual recording uploads. The file is copied into
// the shared store first and then enqueued through the same path as watcher
// detections, so manual submissions share the dedup and metadata logic.
type SubmitHandler struct {
	queue     *queue.Queue
	store     *store.Store
	tempDir   string
	device    string
	maxSizeMB int
}

// NewSubmitHandler creates the manual submission handler.
func NewSubmitHandler(q *queue.Queue, st *store.Store, tempDir, device string, maxSizeMB int) *SubmitHandler {
	return &SubmitHandler{
		queue:     q,
		store:     st,
		tempDir:   tempDir,
		device:    device,
		maxSizeMB: maxSizeMB,
	}
}

// Handle processes the upload request.
func (h *SubmitHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}
	if !transcription.ValidateAudioFormat(file.Filename) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	audioFileName := sanitizeFileName(file.Filename)
	if h.store.HasAudio(audioFileName) {
		return c.Status(409).JSON(fiber.Map{
			"error": "A recording with this name already exists",
			"code":  "ERR_DUPLICATE_NAME",
		})
	}

	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("upload_%s%s", uuid.New().String(), filepath.Ext(audioFileName)))
	if err := c.SaveFile(file, tempPath); err != nil {
		log.Printf("submit: save upload: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}
	defer os.Remove(tempPath)

	if err := h.store.ImportAudio(tempPath, audioFileName); err != nil {
		log.Printf("submit: import audio: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to store recording",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	meta := types.NewRecordingMetadata(audioFileName, h.device)
	if title := strings.TrimSpace(c.FormValue("title")); title != "" {
		meta.Title = title
	}
	if err := h.store.Save(meta); err != nil {
		log.Printf("submit: save metadata: %v", err)
	}

	if err := h.queue.Enqueue(audioFileName, h.store.AudioPath(audioFileName), types.SourceManual); err != nil {
		log.Printf("submit: enqueue: %v", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to enqueue recording",
			"code":  "ERR_ENQUEUE_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"audioFileName": audioFileName,
		"status":        "queued",
	})
}

// sanitizeFileName strips path components and characters that would break
// the shared-folder naming convention.
func sanitizeFileName(name string) string {
	name = filepath.Base(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	name = replacer.Replace(name)
	if len(name) > 120 {
		ext := filepath.Ext(name)
		name = name[:120-len(ext)] + ext
	}
	return name
}
