package bus

import (
	"sync"

	"driftpursuit/netplay/internal/protocol"
)

// TagTraffic aggregates the counters tracked for a single message tag.
type TagTraffic struct {
	Sent          int64
	SentBytes     int64
	Received      int64
	ReceivedBytes int64
	Dropped       int64
}

// Metrics tracks message counts per tag. It is safe to read from other goroutines.
type Metrics struct {
	mu      sync.RWMutex
	traffic map[protocol.Tag]*TagTraffic
}

// NewMetrics constructs an empty tracker.
func NewMetrics() *Metrics {
	return &Metrics{traffic: make(map[protocol.Tag]*TagTraffic)}
}

func (m *Metrics) entryLocked(tag protocol.Tag) *TagTraffic {
	entry := m.traffic[tag]
	if entry == nil {
		entry = &TagTraffic{}
		m.traffic[tag] = entry
	}
	return entry
}

func (m *Metrics) observeSent(tag protocol.Tag, size int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	entry := m.entryLocked(tag)
	entry.Sent++
	entry.SentBytes += int64(size)
	m.mu.Unlock()
}

func (m *Metrics) observeReceived(tag protocol.Tag, size int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	entry := m.entryLocked(tag)
	entry.Received++
	entry.ReceivedBytes += int64(size)
	m.mu.Unlock()
}

func (m *Metrics) observeDropped(tag protocol.Tag) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.entryLocked(tag).Dropped++
	m.mu.Unlock()
}

// Snapshot returns a copy of the counters so callers can iterate safely.
func (m *Metrics) Snapshot() map[protocol.Tag]TagTraffic {
	if m == nil {
		return nil
	}
	//1.- Copy under the read lock to shield callers from concurrent mutation.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.traffic) == 0 {
		return nil
	}
	out := make(map[protocol.Tag]TagTraffic, len(m.traffic))
	for tag, entry := range m.traffic {
		out[tag] = *entry
	}
	return out
}

// Reset clears every counter, used when a session ends.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.traffic = make(map[protocol.Tag]*TagTraffic)
	m.mu.Unlock()
}
