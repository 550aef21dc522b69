package transport

import (
	"errors"
	"testing"
)

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestMemoryDialAssignsIdsAndAnnouncesPeers(t *testing.T) {
	network := NewNetwork()
	host := network.NewTransport()
	if err := host.Listen(42005); err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := network.NewTransport()
	b := network.NewTransport()
	if err := a.Dial("127.0.0.1", 42005); err != nil {
		t.Fatalf("dial a: %v", err)
	}
	if err := b.Dial("127.0.0.1", 42005); err != nil {
		t.Fatalf("dial b: %v", err)
	}

	if a.LocalID() != 2 || b.LocalID() != 3 {
		t.Fatalf("expected ids 2 and 3, got %d and %d", a.LocalID(), b.LocalID())
	}

	hostEvents := host.Drain()
	if len(hostEvents) != 2 || hostEvents[0].Peer != 2 || hostEvents[1].Peer != 3 {
		t.Fatalf("unexpected host events: %+v", hostEvents)
	}

	bEvents := b.Drain()
	want := []EventKind{EventConnected, EventPeerConnected, EventPeerConnected}
	got := kinds(bEvents)
	if len(got) != len(want) {
		t.Fatalf("unexpected b events: %+v", bEvents)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s got %s", i, want[i], got[i])
		}
	}
	if bEvents[1].Peer != HostID || bEvents[2].Peer != 2 {
		t.Fatalf("expected b to learn about host then a, got %+v", bEvents)
	}

	aEvents := a.Drain()
	if last := aEvents[len(aEvents)-1]; last.Kind != EventPeerConnected || last.Peer != 3 {
		t.Fatalf("expected a to learn about b, got %+v", aEvents)
	}
}

func TestMemoryListenRejectsTakenPort(t *testing.T) {
	network := NewNetwork()
	if err := network.NewTransport().Listen(42005); err != nil {
		t.Fatalf("listen: %v", err)
	}
	err := network.NewTransport().Listen(42005)
	if !errors.Is(err, ErrAddressInUse) {
		t.Fatalf("expected ErrAddressInUse, got %v", err)
	}
}

func TestMemoryDialWithoutHostFailsAsynchronously(t *testing.T) {
	network := NewNetwork()
	client := network.NewTransport()
	if err := client.Dial("", 42005); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := client.Dial("127.0.0.1", 42005); err != nil {
		t.Fatalf("dial: %v", err)
	}
	events := client.Drain()
	if len(events) != 1 || events[0].Kind != EventConnectFailed || events[0].Err == nil {
		t.Fatalf("expected a single connect failure, got %+v", events)
	}
}

func TestMemorySendRoutingAndPayloadCopy(t *testing.T) {
	network := NewNetwork()
	host := network.NewTransport()
	_ = host.Listen(7000)
	a := network.NewTransport()
	b := network.NewTransport()
	_ = a.Dial("localhost", 7000)
	_ = b.Dial("localhost", 7000)
	host.Drain()
	a.Drain()
	b.Drain()

	payload := []byte{1, 2, 3}
	if err := host.Send(Broadcast, payload); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	payload[0] = 9
	for name, peer := range map[string]*MemoryTransport{"a": a, "b": b} {
		events := peer.Drain()
		if len(events) != 1 || events[0].Kind != EventPacket || events[0].Peer != HostID || events[0].Payload[0] != 1 {
			t.Fatalf("%s: unexpected broadcast delivery %+v", name, events)
		}
	}

	if err := a.Send(3, []byte{4}); !errors.Is(err, ErrNotRoutable) {
		t.Fatalf("expected ErrNotRoutable for client-to-client, got %v", err)
	}
	if err := a.Send(HostID, []byte{4}); err != nil {
		t.Fatalf("client send: %v", err)
	}
	events := host.Drain()
	if len(events) != 1 || events[0].Peer != 2 {
		t.Fatalf("expected packet from peer 2, got %+v", events)
	}
	if err := host.Send(99, []byte{1}); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("expected ErrUnknownPeer, got %v", err)
	}
}

func TestMemoryCloseNotifiesAndDiscardsQueue(t *testing.T) {
	network := NewNetwork()
	host := network.NewTransport()
	_ = host.Listen(7000)
	a := network.NewTransport()
	b := network.NewTransport()
	_ = a.Dial("localhost", 7000)
	_ = b.Dial("localhost", 7000)
	host.Drain()
	b.Drain()

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if events := a.Drain(); len(events) != 0 {
		t.Fatalf("expected closed transport to drop queued events, got %+v", events)
	}
	if a.LocalID() != Unassigned {
		t.Fatalf("expected unassigned id after close, got %d", a.LocalID())
	}
	if events := host.Drain(); len(events) != 1 || events[0].Kind != EventPeerDisconnected || events[0].Peer != 2 {
		t.Fatalf("unexpected host events: %+v", events)
	}
	if events := b.Drain(); len(events) != 1 || events[0].Kind != EventPeerDisconnected {
		t.Fatalf("unexpected peer events: %+v", events)
	}

	_ = host.Close()
	if events := b.Drain(); len(events) != 1 || events[0].Kind != EventServerDisconnected {
		t.Fatalf("expected server disconnect, got %+v", events)
	}
	if err := network.NewTransport().Listen(7000); err != nil {
		t.Fatalf("port should be free after host close: %v", err)
	}
}

func TestMemoryKickDisconnectsClient(t *testing.T) {
	network := NewNetwork()
	host := network.NewTransport()
	_ = host.Listen(7000)
	a := network.NewTransport()
	_ = a.Dial("localhost", 7000)
	host.Drain()
	a.Drain()

	host.Kick(2)
	if events := a.Drain(); len(events) != 1 || events[0].Kind != EventServerDisconnected {
		t.Fatalf("expected kicked client to see server disconnect, got %+v", events)
	}
	if events := host.Drain(); len(events) != 1 || events[0].Kind != EventPeerDisconnected {
		t.Fatalf("expected host to see peer disconnect, got %+v", events)
	}
	if err := a.Send(HostID, []byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen after kick, got %v", err)
	}
}
