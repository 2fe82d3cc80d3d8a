package index

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voicebridge/voicebridge/internal/types"
)

// Index is the searchable transcript database. The core only writes to it
// when a job finishes; the HTTP layer reads it for listing. Processing
// decisions never consult it.
type Index struct {
	db *sql.DB
}

// Entry is one indexed transcript.
type Entry struct {
	AudioFileName       string    `json:"audioFileName"`
	Title               string    `json:"title"`
	TranscriptPath      string    `json:"transcriptPath"`
	Language            string    `json:"language,omitempty"`
	Duration            float64   `json:"duration"`
	WordCount           int       `json:"wordCount"`
	CreatedOnDevice     string    `json:"createdOnDevice,omitempty"`
	TranscribedOnDevice string    `json:"transcribedOnDevice,omitempty"`
	IndexedAt           time.Time `json:"indexedAt"`
}

// New opens (or creates) the SQLite index.
func New(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS transcripts (
		audio_file_name TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		transcript_path TEXT NOT NULL,
		language TEXT,
		duration REAL,
		word_count INTEGER,
		created_on_device TEXT,
		transcribed_on_device TEXT,
		indexed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_indexed_at ON transcripts(indexed_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Add inserts or replaces the entry for a finalized transcript. Re-running a
// recording (retry) overwrites its previous row.
func (ix *Index) Add(meta *types.RecordingMetadata, result *types.TranscriptionResult, transcriptPath string) error {
	query := `
	INSERT OR REPLACE INTO transcripts
		(audio_file_name, title, transcript_path, language, duration, word_count, created_on_device, transcribed_on_device, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ix.db.Exec(query,
		meta.AudioFileName, meta.Title, transcriptPath, result.Language,
		result.Duration, result.WordCount, meta.CreatedOnDevice, meta.TranscribedOnDevice,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index transcript %s: %w", meta.AudioFileName, err)
	}
	return nil
}

// Get retrieves one entry by recording name.
func (ix *Index) Get(audioFileName string) (*Entry, error) {
	query := `
	SELECT audio_file_name, title, transcript_path, language, duration, word_count, created_on_device, transcribed_on_device, indexed_at
	FROM transcripts WHERE audio_file_name = ?
	`
	var e Entry
	err := ix.db.QueryRow(query, audioFileName).Scan(
		&e.AudioFileName, &e.Title, &e.TranscriptPath, &e.Language,
		&e.Duration, &e.WordCount, &e.CreatedOnDevice, &e.TranscribedOnDevice, &e.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", audioFileName, err)
	}
	return &e, nil
}

// List returns the most recently indexed transcripts.
func (ix *Index) List(limit int) ([]Entry, error) {
	query := `
	SELECT audio_file_name, title, transcript_path, language, duration, word_count, created_on_device, transcribed_on_device, indexed_at
	FROM transcripts ORDER BY indexed_at DESC LIMIT ?
	`
	rows, err := ix.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.AudioFileName, &e.Title, &e.TranscriptPath, &e.Language,
			&e.Duration, &e.WordCount, &e.CreatedOnDevice, &e.TranscribedOnDevice, &e.IndexedAt); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}
