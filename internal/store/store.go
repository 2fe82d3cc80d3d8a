package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/voicebridge/voicebridge/internal/types"
)

// HeartbeatFileName is the well-known liveness file inside the shared folder.
const HeartbeatFileName = "heartbeat.json"

// Store reads and writes per-recording metadata and blobs inside the shared
// synced folder. There is no locking across devices: every save is a whole
// record, last write wins, and sync conflicts are repaired after the fact by
// CleanDuplicates.
type Store struct {
	dir string
}

// New creates a store rooted at the shared directory, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create shared dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the shared directory path.
func (s *Store) Dir() string {
	return s.dir
}

// BaseName strips the extension from an audio file name; it is the stable
// key every sibling file name derives from.
func BaseName(audioFileName string) string {
	return strings.TrimSuffix(audioFileName, filepath.Ext(audioFileName))
}

// MetadataFileName returns the metadata sibling for an audio file name.
func MetadataFileName(audioFileName string) string {
	return BaseName(audioFileName) + ".json"
}

// TranscriptFileName returns the transcript sibling for an audio file name.
func TranscriptFileName(audioFileName string) string {
	return BaseName(audioFileName) + ".txt"
}

// AudioPath returns the absolute path of an audio blob.
func (s *Store) AudioPath(audioFileName string) string {
	return filepath.Join(s.dir, audioFileName)
}

// MetadataPath returns the absolute path of a metadata record.
func (s *Store) MetadataPath(audioFileName string) string {
	return filepath.Join(s.dir, MetadataFileName(audioFileName))
}

// TranscriptPath returns the absolute path of a transcript blob.
func (s *Store) TranscriptPath(audioFileName string) string {
	return filepath.Join(s.dir, TranscriptFileName(audioFileName))
}

// HeartbeatPath returns the absolute path of the heartbeat file.
func (s *Store) HeartbeatPath() string {
	return filepath.Join(s.dir, HeartbeatFileName)
}

// Load reads the metadata record for an audio file. A missing record is not
// an error; it returns (nil, nil).
func (s *Store) Load(audioFileName string) (*types.RecordingMetadata, error) {
	data, err := os.ReadFile(s.MetadataPath(audioFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata for %s: %w", audioFileName, err)
	}

	var meta types.RecordingMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", audioFileName, err)
	}
	if meta.AudioFileName == "" {
		meta.AudioFileName = audioFileName
	}
	return &meta, nil
}

// LoadMetadataFile reads a record by its own file name, for callers that
// observed a metadata file and do not yet know the audio name it describes.
func (s *Store) LoadMetadataFile(fileName string) (*types.RecordingMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata file %s: %w", fileName, err)
	}
	var meta types.RecordingMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata file %s: %w", fileName, err)
	}
	return &meta, nil
}

// Save writes the whole metadata record atomically: marshal to a temp file
// in the same directory, then rename over the target. Sync clients see
// either the old or the new record, never a partial one.
func (s *Store) Save(meta *types.RecordingMetadata) error {
	if meta == nil || meta.AudioFileName == "" {
		return fmt.Errorf("save metadata: missing audio file name")
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", meta.AudioFileName, err)
	}

	target := s.MetadataPath(meta.AudioFileName)
	tmp, err := os.CreateTemp(s.dir, ".meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write metadata for %s: %w", meta.AudioFileName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp metadata file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace metadata for %s: %w", meta.AudioFileName, err)
	}
	return nil
}

// HasAudio reports whether the audio blob exists in the shared folder.
func (s *Store) HasAudio(audioFileName string) bool {
	info, err := os.Stat(s.AudioPath(audioFileName))
	return err == nil && !info.IsDir()
}

// AudioSize returns the current size of the audio blob, or -1 when absent.
func (s *Store) AudioSize(audioFileName string) int64 {
	info, err := os.Stat(s.AudioPath(audioFileName))
	if err != nil || info.IsDir() {
		return -1
	}
	return info.Size()
}

// HasTranscript reports whether a transcript blob exists for the recording.
func (s *Store) HasTranscript(audioFileName string) bool {
	info, err := os.Stat(s.TranscriptPath(audioFileName))
	return err == nil && !info.IsDir()
}

// WriteTranscript saves the transcript text and returns its file name.
func (s *Store) WriteTranscript(audioFileName, text string) (string, error) {
	name := TranscriptFileName(audioFileName)
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write transcript for %s: %w", audioFileName, err)
	}
	return name, nil
}

// ReadTranscript returns the transcript text for a recording.
func (s *Store) ReadTranscript(audioFileName string) (string, error) {
	data, err := os.ReadFile(s.TranscriptPath(audioFileName))
	if err != nil {
		return "", fmt.Errorf("read transcript for %s: %w", audioFileName, err)
	}
	return string(data), nil
}

// DeleteTranscript removes a transcript blob; missing files are fine.
func (s *Store) DeleteTranscript(audioFileName string) error {
	err := os.Remove(s.TranscriptPath(audioFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete transcript for %s: %w", audioFileName, err)
	}
	return nil
}

// DeleteAudio removes the source audio blob; missing files are fine.
func (s *Store) DeleteAudio(audioFileName string) error {
	err := os.Remove(s.AudioPath(audioFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete audio %s: %w", audioFileName, err)
	}
	return nil
}

// ImportAudio copies an audio file into the shared folder under the given
// name, used by the manual submission path.
func (s *Store) ImportAudio(srcPath, audioFileName string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source audio: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.AudioPath(audioFileName))
	if err != nil {
		return fmt.Errorf("create shared audio %s: %w", audioFileName, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(s.AudioPath(audioFileName))
		return fmt.Errorf("copy audio %s: %w", audioFileName, err)
	}
	return dst.Close()
}

// ListMetadata loads every metadata record in the shared folder. Records
// that fail to parse are skipped rather than aborting the sweep.
func (s *Store) ListMetadata() ([]*types.RecordingMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read shared dir: %w", err)
	}

	var out []*types.RecordingMetadata
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || name == HeartbeatFileName {
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var meta types.RecordingMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if meta.AudioFileName == "" {
			continue
		}
		out = append(out, &meta)
	}
	return out, nil
}
