// Package observer exposes a peer's session to out-of-process presentation
// layers over gRPC. The simulation goroutine publishes into a Feed; RPC
// handlers only ever read the Feed, never the live registry.
package observer

import (
	"context"
	"sync"

	"driftpursuit/netplay/internal/roster"
)

// StatusUpdate is one connection status transition as seen by watchers.
type StatusUpdate struct {
	Seq              uint64
	Status           string
	LocalID          int32
	MultiplayerReady bool
	Host             bool
}

const subscriberBuffer = 16

// Feed fans status updates out to watchers and keeps the latest roster.
type Feed struct {
	mu          sync.RWMutex
	seq         uint64
	latest      StatusUpdate
	players     []roster.View
	subscribers map[uint64]chan StatusUpdate
	nextID      uint64
	dropped     uint64
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subscribers: make(map[uint64]chan StatusUpdate)}
}

// PublishStatus stamps update with the next sequence number and delivers it
// to every watcher. Watchers whose buffer is full miss the update.
func (f *Feed) PublishStatus(update StatusUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	update.Seq = f.seq
	f.latest = update
	for _, ch := range f.subscribers {
		select {
		case ch <- update:
		default:
			f.dropped++
		}
	}
}

// PublishRoster replaces the roster snapshot. The slice is owned by the feed afterwards.
func (f *Feed) PublishRoster(players []roster.View) {
	f.mu.Lock()
	f.players = players
	f.mu.Unlock()
}

// Latest returns the last status and a copy of the last roster.
func (f *Feed) Latest() (StatusUpdate, []roster.View) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	players := make([]roster.View, len(f.players))
	copy(players, f.players)
	return f.latest, players
}

// Dropped reports how many updates were skipped for slow watchers.
func (f *Feed) Dropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

// Subscribe registers a watcher. The current status is delivered first when
// one has been published. The channel closes after cancel or when ctx ends.
func (f *Feed) Subscribe(ctx context.Context) (<-chan StatusUpdate, func()) {
	ch := make(chan StatusUpdate, subscriberBuffer)

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.seq > 0 {
		ch <- f.latest
	}
	f.subscribers[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if sub, ok := f.subscribers[id]; ok {
				delete(f.subscribers, id)
				close(sub)
			}
			f.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel
}
