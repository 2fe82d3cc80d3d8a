package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/types"
)

// DriveMirror uploads finished transcripts to a Google Drive folder as an
// off-device backup. It is strictly optional and one-way; the sync protocol
// between devices runs through the shared folder, never through Drive.
type DriveMirror struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveMirror builds a mirror from stored OAuth credentials. Unlike an
// interactive CLI flow, a missing or expired token is an error here: a
// daemon cannot prompt, so token provisioning happens out of band.
func NewDriveMirror(credentialsFile, tokenFile, folderName string) (*DriveMirror, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse drive credentials: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("drive token unavailable (provision it with an interactive oauth tool first): %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	m := &DriveMirror{service: srv, folderName: folderName}
	if err := m.ensureFolder(); err != nil {
		return nil, err
	}
	return m, nil
}

// tokenFromFile retrieves a cached OAuth token.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ensureFolder finds or creates the mirror folder.
func (m *DriveMirror) ensureFolder() error {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
		m.folderName)

	r, err := m.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return fmt.Errorf("search for drive folder: %w", err)
	}
	if len(r.Files) > 0 {
		m.folderID = r.Files[0].Id
		return nil
	}

	folder := &drive.File{
		Name:     m.folderName,
		MimeType: "application/vnd.google-apps.folder",
	}
	file, err := m.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("create drive folder: %w", err)
	}
	m.folderID = file.Id
	return nil
}

// Upload mirrors the transcript text and a metadata summary. Returns a
// shareable link to the uploaded metadata file.
func (m *DriveMirror) Upload(audioFileName string, meta *types.RecordingMetadata, result *types.TranscriptionResult) (string, error) {
	base := store.BaseName(audioFileName)

	txtFile := &drive.File{
		Name:    base + ".txt",
		Parents: []string{m.folderID},
	}
	if _, err := m.service.Files.Create(txtFile).Media(bytes.NewReader([]byte(result.Text))).Do(); err != nil {
		return "", fmt.Errorf("upload transcript: %w", err)
	}

	summary := map[string]interface{}{
		"audioFileName":       meta.AudioFileName,
		"title":               meta.Title,
		"durationSeconds":     result.Duration,
		"wordCount":           result.WordCount,
		"language":            result.Language,
		"segments":            result.Segments,
		"createdOnDevice":     meta.CreatedOnDevice,
		"transcribedOnDevice": meta.TranscribedOnDevice,
		"createdAt":           meta.CreatedAt,
	}
	metaJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal mirror metadata: %w", err)
	}

	metaFile := &drive.File{
		Name:    base + ".meta.json",
		Parents: []string{m.folderID},
	}
	created, err := m.service.Files.Create(metaFile).Media(bytes.NewReader(metaJSON)).Do()
	if err != nil {
		return "", fmt.Errorf("upload mirror metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}
