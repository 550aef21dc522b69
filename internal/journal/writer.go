// Package journal records a peer's session to disk: session events as a
// snappy-compressed JSON lines stream and weapon discharges as zstd-compressed
// binary frames. Bundles can be loaded back for inspection and deterministic
// re-simulation of every recorded shot.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

var labelCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// frameInterval batches fire frames before they reach the zstd stream.
const frameInterval = 200 * time.Millisecond

// Writer streams a session journal to disk.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	manifest    Manifest
	eventFile   *os.File
	eventStream *snappy.Writer
	fireFile    *os.File
	fireStream  *zstd.Encoder
	pending     []FireFrame
	lastFlush   time.Time
	events      int
	fires       int
	closed      bool
}

// NewWriter creates a bundle directory under root and opens its compressed
// streams. label names the bundle, typically the peer's role.
func NewWriter(root, label string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("journal root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := labelCleaner.ReplaceAllString(label, "")
	if cleaned == "" {
		cleaned = "session"
	}
	sessionID := uuid.NewString()
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s-%s", cleaned, created.Format("20060102T150405Z"), sessionID[:8])
	path := filepath.Join(root, folder)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	fireFile, err := os.Create(filepath.Join(path, firesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	fireStream, err := zstd.NewWriter(fireFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		fireFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         SchemaVersion,
		SessionID:       sessionID,
		Label:           cleaned,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(frameInterval / time.Millisecond),
		EventsPath:      eventsFile,
		FiresPath:       firesFile,
	}
	if err := writeJSON(filepath.Join(path, manifestFile), manifest); err != nil {
		fireStream.Close()
		fireFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         path,
		now:         clock,
		manifest:    manifest,
		eventFile:   eventFile,
		eventStream: eventStream,
		fireFile:    fireFile,
		fireStream:  fireStream,
	}, manifest, nil
}

// Directory exposes the bundle directory.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendEvent writes one JSON line describing a session event.
func (w *Writer) AppendEvent(tick uint64, kind string, payload any) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}

	line, err := json.Marshal(eventLine{
		Tick:       tick,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       kind,
		Payload:    body,
	})
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.events++
	return w.eventStream.Flush()
}

// AppendFire stages a fire frame and flushes staged frames once per frame interval.
func (w *Writer) AppendFire(frame FireFrame) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = captured
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}

	w.pending = append(w.pending, frame)
	w.fires++
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= frameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Flush forces staged frames into the compressed stream.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close flushes every stream, writes the summary and releases file handles.
// Closing twice is a no-op.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(w.flushLocked())
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.fireStream.Close())
	keep(w.fireFile.Close())

	summary := Summary{
		SchemaVersion: SchemaVersion,
		SessionID:     w.manifest.SessionID,
		ClosedAt:      w.now().UTC().Format(time.RFC3339Nano),
		Events:        w.events,
		Fires:         w.fires,
		FilePointer:   manifestFile,
	}
	keep(writeJSON(filepath.Join(w.dir, summaryFile), summary))
	return firstErr
}

// flushLocked writes staged frames to the zstd stream; callers hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(w.pending)*(frameHeaderSize+8))
	for _, frame := range w.pending {
		var err error
		if buf, err = frame.appendTo(buf); err != nil {
			return err
		}
	}
	if _, err := w.fireStream.Write(buf); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}

type eventLine struct {
	Tick       uint64          `json:"tick"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}
