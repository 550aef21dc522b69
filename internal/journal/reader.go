package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Event is one decoded session event.
type Event struct {
	Tick       uint64
	CapturedAt time.Time
	Type       string
	Payload    json.RawMessage
}

// Entry is one step of the merged timeline. Exactly one of Event and Fire is set.
type Entry struct {
	Tick  uint64
	Event *Event
	Fire  *FireFrame
}

// Journal is a bundle loaded back from disk.
type Journal struct {
	Manifest Manifest
	// Summary is the zero value when Complete is false.
	Summary  Summary
	Complete bool
	Events   []Event
	Fires    []FireFrame
}

// Load reads the bundle in dir.
func Load(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal directory must be provided")
	}
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	summary, complete, err := ReadSummary(dir)
	if err != nil {
		return nil, err
	}
	events, err := readEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	fires, err := readFires(filepath.Join(dir, manifest.FiresPath))
	if err != nil {
		return nil, fmt.Errorf("fires: %w", err)
	}
	if complete && (summary.Events != len(events) || summary.Fires != len(fires)) {
		return nil, fmt.Errorf("summary lists %d events and %d fires, bundle holds %d and %d",
			summary.Events, summary.Fires, len(events), len(fires))
	}
	return &Journal{
		Manifest: manifest,
		Summary:  summary,
		Complete: complete,
		Events:   events,
		Fires:    fires,
	}, nil
}

// Timeline merges events and fires ordered by tick. Within a tick, events
// precede fires and each kind keeps its recorded order.
func (j *Journal) Timeline() []Entry {
	if j == nil {
		return nil
	}
	out := make([]Entry, 0, len(j.Events)+len(j.Fires))
	for i := range j.Events {
		out = append(out, Entry{Tick: j.Events[i].Tick, Event: &j.Events[i]})
	}
	for i := range j.Fires {
		out = append(out, Entry{Tick: j.Fires[i].Tick, Fire: &j.Fires[i]})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Tick != out[b].Tick {
			return out[a].Tick < out[b].Tick
		}
		return out[a].Event != nil && out[b].Fire != nil
	})
	return out
}

// Replay feeds the timeline to apply, stopping at the first error.
func (j *Journal) Replay(apply func(Entry) error) error {
	if j == nil {
		return fmt.Errorf("journal not loaded")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range j.Timeline() {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}

func readEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() {
		var line eventLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(events)+1, err)
		}
		captured, err := time.Parse(time.RFC3339Nano, line.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("line %d captured_at: %w", len(events)+1, err)
		}
		events = append(events, Event{
			Tick:       line.Tick,
			CapturedAt: captured,
			Type:       line.Type,
			Payload:    append(json.RawMessage(nil), line.Payload...),
		})
	}
	return events, scanner.Err()
}

func readFires(path string) ([]FireFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	reader := bufio.NewReader(decoder)
	var fires []FireFrame
	for {
		frame, err := readFrame(reader)
		if errors.Is(err, io.EOF) {
			return fires, nil
		}
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(fires)+1, err)
		}
		fires = append(fires, frame)
	}
}
