package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type memoryRole int

const (
	memoryIdle memoryRole = iota
	memoryHost
	memoryClient
)

// Network is an in-process switch connecting MemoryTransports by port number.
// Delivery is immediate and ordered per destination.
type Network struct {
	mu    sync.Mutex
	hosts map[int]*MemoryTransport
}

// NewNetwork constructs an empty in-memory network.
func NewNetwork() *Network {
	return &Network{hosts: make(map[int]*MemoryTransport)}
}

// NewTransport attaches a fresh, idle transport to the network.
func (n *Network) NewTransport() *MemoryTransport {
	return &MemoryTransport{network: n, local: Unassigned}
}

// MemoryTransport implements Transport over a Network.
type MemoryTransport struct {
	network *Network
	queue   eventQueue

	// guarded by network.mu
	role   memoryRole
	local  PeerID
	port   int
	host   *MemoryTransport
	peers  map[PeerID]*MemoryTransport
	nextID PeerID
}

var _ Transport = (*MemoryTransport)(nil)

// Listen registers the transport as the host for port.
func (t *MemoryTransport) Listen(port int) error {
	n := t.network
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.role != memoryIdle {
		return ErrAlreadyOpen
	}
	if _, taken := n.hosts[port]; taken {
		return fmt.Errorf("listen on port %d: %w", port, ErrAddressInUse)
	}
	n.hosts[port] = t
	t.role = memoryHost
	t.port = port
	t.local = HostID
	t.peers = make(map[PeerID]*MemoryTransport)
	t.nextID = HostID + 1
	return nil
}

// Dial connects to the host registered on port. The address is only validated;
// every address reaches the same in-process network. A missing host surfaces
// as EventConnectFailed on the next Drain.
func (t *MemoryTransport) Dial(address string, port int) error {
	if strings.TrimSpace(address) == "" {
		return ErrInvalidAddress
	}
	n := t.network
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.role != memoryIdle {
		return ErrAlreadyOpen
	}
	t.role = memoryClient
	host, ok := n.hosts[port]
	if !ok {
		t.queue.push(Event{Kind: EventConnectFailed, Err: fmt.Errorf("no host on port %d", port)})
		return nil
	}
	id := host.nextID
	host.nextID++
	t.local = id
	t.port = port
	t.host = host

	//1.- The newcomer learns about the host and every existing peer first.
	t.queue.push(Event{Kind: EventConnected})
	t.queue.push(Event{Kind: EventPeerConnected, Peer: HostID})
	for _, peer := range host.sortedPeersLocked() {
		t.queue.push(Event{Kind: EventPeerConnected, Peer: peer.local})
		peer.queue.push(Event{Kind: EventPeerConnected, Peer: id})
	}
	//2.- Then the host records it.
	host.peers[id] = t
	host.queue.push(Event{Kind: EventPeerConnected, Peer: id})
	return nil
}

// Close leaves the network. Hosts disconnect every client; clients notify the
// host and their fellow clients.
func (t *MemoryTransport) Close() error {
	n := t.network
	n.mu.Lock()
	defer n.mu.Unlock()
	switch t.role {
	case memoryHost:
		for _, peer := range t.sortedPeersLocked() {
			peer.host = nil
			peer.queue.push(Event{Kind: EventServerDisconnected})
		}
		if n.hosts[t.port] == t {
			delete(n.hosts, t.port)
		}
	case memoryClient:
		if host := t.host; host != nil {
			delete(host.peers, t.local)
			host.queue.push(Event{Kind: EventPeerDisconnected, Peer: t.local})
			for _, peer := range host.sortedPeersLocked() {
				peer.queue.push(Event{Kind: EventPeerDisconnected, Peer: t.local})
			}
		}
	}
	t.role = memoryIdle
	t.local = Unassigned
	t.host = nil
	t.peers = nil
	t.port = 0
	t.queue.reset()
	return nil
}

// Send copies payload into the destination queues.
func (t *MemoryTransport) Send(to PeerID, payload []byte) error {
	n := t.network
	n.mu.Lock()
	defer n.mu.Unlock()
	switch t.role {
	case memoryHost:
		if to == Broadcast {
			for _, peer := range t.sortedPeersLocked() {
				peer.queue.push(packet(HostID, payload))
			}
			return nil
		}
		peer, ok := t.peers[to]
		if !ok {
			return fmt.Errorf("send to %d: %w", to, ErrUnknownPeer)
		}
		peer.queue.push(packet(HostID, payload))
		return nil
	case memoryClient:
		if t.host == nil {
			return ErrNotOpen
		}
		if to != HostID {
			return ErrNotRoutable
		}
		t.host.queue.push(packet(t.local, payload))
		return nil
	default:
		return ErrNotOpen
	}
}

// Drain returns the events queued for this transport.
func (t *MemoryTransport) Drain() []Event {
	return t.queue.drain()
}

// LocalID reports the assigned identity, or Unassigned when idle.
func (t *MemoryTransport) LocalID() PeerID {
	t.network.mu.Lock()
	defer t.network.mu.Unlock()
	return t.local
}

// Kick forcibly removes a client as if its connection dropped: the client sees
// EventServerDisconnected and everyone else EventPeerDisconnected.
func (t *MemoryTransport) Kick(id PeerID) {
	n := t.network
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.role != memoryHost {
		return
	}
	peer, ok := t.peers[id]
	if !ok {
		return
	}
	delete(t.peers, id)
	peer.host = nil
	peer.queue.push(Event{Kind: EventServerDisconnected})
	t.queue.push(Event{Kind: EventPeerDisconnected, Peer: id})
	for _, other := range t.sortedPeersLocked() {
		other.queue.push(Event{Kind: EventPeerDisconnected, Peer: id})
	}
}

func (t *MemoryTransport) sortedPeersLocked() []*MemoryTransport {
	out := make([]*MemoryTransport, 0, len(t.peers))
	for _, peer := range t.peers {
		out = append(out, peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].local < out[j].local })
	return out
}

func packet(from PeerID, payload []byte) Event {
	return Event{Kind: EventPacket, Peer: from, Payload: append([]byte(nil), payload...)}
}
