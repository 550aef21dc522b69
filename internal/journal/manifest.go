package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SchemaVersion tracks the layout of journal bundles.
const SchemaVersion = 1

const (
	manifestFile = "manifest.json"
	summaryFile  = "summary.json"
	eventsFile   = "events.jsonl.sz"
	firesFile    = "fires.bin.zst"
)

// Manifest describes a journal bundle so tooling can locate its artefacts.
// It is written when the bundle is opened.
type Manifest struct {
	Version         int    `json:"version"`
	SessionID       string `json:"session_id"`
	Label           string `json:"label"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FiresPath       string `json:"fires_path"`
}

// Created parses CreatedAt, returning the zero time when it is malformed.
func (m Manifest) Created() time.Time {
	t, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate ensures the manifest points at its artefacts.
func (m Manifest) Validate() error {
	if m.Version <= 0 {
		return fmt.Errorf("version must be positive")
	}
	if strings.TrimSpace(m.SessionID) == "" {
		return fmt.Errorf("session_id must not be empty")
	}
	if strings.TrimSpace(m.EventsPath) == "" || strings.TrimSpace(m.FiresPath) == "" {
		return fmt.Errorf("artefact paths must not be empty")
	}
	return nil
}

// Summary is written when a bundle is closed cleanly. A bundle without one
// was interrupted.
type Summary struct {
	SchemaVersion int    `json:"schema_version"`
	SessionID     string `json:"session_id"`
	ClosedAt      string `json:"closed_at"`
	Events        int    `json:"events"`
	Fires         int    `json:"fires"`
	FilePointer   string `json:"file_pointer"`
}

// Validate ensures the summary can be tied back to its manifest.
func (s Summary) Validate() error {
	if s.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(s.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

func writeJSON(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadManifest loads and validates the manifest of the bundle in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Manifest{}, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest: %w", err)
	}
	return m, nil
}

// ReadSummary loads the summary of the bundle in dir. ok is false when the
// bundle was never closed.
func ReadSummary(dir string) (summary Summary, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if os.IsNotExist(err) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, err
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, false, fmt.Errorf("decode summary: %w", err)
	}
	if err := summary.Validate(); err != nil {
		return Summary{}, false, fmt.Errorf("summary: %w", err)
	}
	return summary, true, nil
}
