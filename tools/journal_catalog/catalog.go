package journalcatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"driftpursuit/netplay/internal/journal"
)

// Entry captures a journal manifest alongside its bundle directory.
type Entry struct {
	Dir      string           `json:"dir"`
	Manifest journal.Manifest `json:"manifest"`
	Complete bool             `json:"complete"`
	Summary  *journal.Summary `json:"summary,omitempty"`
}

// List walks the directory tree and returns every journal bundle, oldest first.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the directory tree searching for bundle manifests.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "manifest.json" {
			return nil
		}
		dir := filepath.Dir(path)
		manifest, err := journal.ReadManifest(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		entry := Entry{Dir: dir, Manifest: manifest}
		summary, ok, err := journal.ReadSummary(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if ok {
			entry.Complete = true
			entry.Summary = &summary
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		ci, cj := entries[i].Manifest.Created(), entries[j].Manifest.Created()
		if ci.Equal(cj) {
			return entries[i].Dir < entries[j].Dir
		}
		return ci.Before(cj)
	})
	return entries, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(entries, "", "  ")
}
