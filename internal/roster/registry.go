// Package roster maps network identities to player entities for one session.
// The registry is owned by the simulation goroutine; other goroutines read
// Snapshot copies.
package roster

import (
	"errors"
	"fmt"
	"sort"

	"driftpursuit/netplay/internal/transport"
)

var (
	// ErrDuplicatePlayer is returned when an id is registered twice.
	ErrDuplicatePlayer = errors.New("player already registered")
	// ErrUnknownPlayer is returned by Require for ids with no player.
	ErrUnknownPlayer = errors.New("no player for id")
)

// Registry holds the players of the current session keyed by network id.
type Registry struct {
	local   *Player
	players map[transport.PeerID]*Player
}

// NewRegistry constructs an empty registry around the local player.
func NewRegistry(local *Player) *Registry {
	return &Registry{local: local, players: make(map[transport.PeerID]*Player)}
}

// Local returns the player controlled by this process.
func (r *Registry) Local() *Player { return r.local }

// Add registers player under id and stamps the id on the player.
func (r *Registry) Add(id transport.PeerID, player *Player) error {
	if player == nil {
		return errors.New("nil player")
	}
	if _, exists := r.players[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicatePlayer, id)
	}
	player.NetworkID = id
	r.players[id] = player
	return nil
}

// Remove drops the player under id. It reports whether one was present.
func (r *Registry) Remove(id transport.PeerID) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// Get returns the player under id.
func (r *Registry) Get(id transport.PeerID) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Require returns the player under id or ErrUnknownPlayer.
func (r *Registry) Require(id transport.PeerID) (*Player, error) {
	p, ok := r.players[id]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownPlayer, id)
	}
	return p, nil
}

// Clear drops every player and resets the local player's identity.
func (r *Registry) Clear() {
	r.players = make(map[transport.PeerID]*Player)
	if r.local != nil {
		r.local.NetworkID = transport.Unassigned
	}
}

// Len reports the number of registered players.
func (r *Registry) Len() int { return len(r.players) }

// Players returns the registered players ordered by id.
func (r *Registry) Players() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetworkID < out[j].NetworkID })
	return out
}

// Snapshot copies every registered player ordered by id.
func (r *Registry) Snapshot() []View {
	players := r.Players()
	out := make([]View, len(players))
	for i, p := range players {
		out[i] = p.View()
	}
	return out
}
