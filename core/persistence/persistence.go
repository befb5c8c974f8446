package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fwvoice/models"

	"gopkg.in/yaml.v3"
)

// TranscriptExport is what gets written to disk. It has no field for the API
// key.
type TranscriptExport struct {
	SessionID string                   `json:"session_id" yaml:"session_id"`
	ServerURL string                   `json:"server_url" yaml:"server_url"`
	SavedAt   time.Time                `json:"saved_at" yaml:"saved_at"`
	Entries   []models.TranscriptEntry `json:"entries" yaml:"entries"`
}

// TranscriptStore saves a transcript as JSON, or as YAML when the file name
// ends in .yaml or .yml.
type TranscriptStore struct {
	path string
}

func NewTranscriptStore(path string) *TranscriptStore {
	return &TranscriptStore{path: path}
}

func (ts *TranscriptStore) Path() string { return ts.path }

func (ts *TranscriptStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(ts.path))
	return ext == ".yaml" || ext == ".yml"
}

// Save writes the export atomically through a temp file in the same directory.
func (ts *TranscriptStore) Save(export TranscriptExport) error {
	if export.SavedAt.IsZero() {
		export.SavedAt = time.Now().UTC()
	}
	if export.Entries == nil {
		export.Entries = []models.TranscriptEntry{}
	}

	var (
		data []byte
		err  error
	)
	if ts.isYAML() {
		data, err = yaml.Marshal(export)
	} else {
		data, err = json.MarshalIndent(export, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	dir := filepath.Dir(ts.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close transcript: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), ts.path); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

func (ts *TranscriptStore) Load() (*TranscriptExport, error) {
	data, err := os.ReadFile(ts.path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	var export TranscriptExport
	if ts.isYAML() {
		err = yaml.Unmarshal(data, &export)
	} else {
		err = json.Unmarshal(data, &export)
	}
	if err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", ts.path, err)
	}
	return &export, nil
}

// DefaultFileName names an export after its session and the current time.
func DefaultFileName(sessionID string, now time.Time) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("transcript-%s-%s.json", now.Format("20060102-150405"), short)
}
