package handshake

import (
	"testing"

	"driftpursuit/netplay/internal/bus"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/physics"
	"driftpursuit/netplay/internal/protocol"
	"driftpursuit/netplay/internal/roster"
	"driftpursuit/netplay/internal/session"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

type peer struct {
	mgr    *session.Manager
	bus    *bus.Bus
	hs     *Handshake
	seen   []session.Status
	spawns []transport.PeerID
}

func newPeer(t *testing.T, network *transport.Network, name string, spawn physics.Vec2) *peer {
	t.Helper()
	spec, err := weapon.Lookup("pistol")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	tr := network.NewTransport()
	logger := logging.NewTestLogger()
	mgr := session.NewManager(tr, roster.NewRegistry(roster.NewLocalPlayer(name, roster.Color{10, 20, 30}, spec)), logger)
	b := bus.New(tr, logger)
	mgr.SetPacketHandler(func(from transport.PeerID, payload []byte) { _ = b.Dispatch(from, payload) })
	p := &peer{mgr: mgr, bus: b}
	p.hs = New(mgr, b, Options{Spawn: spawn, Logger: logger})
	p.hs.OnSpawn(func(v roster.View) { p.spawns = append(p.spawns, v.ID) })
	mgr.Subscribe(func(s session.Status) { p.seen = append(p.seen, s) })
	return p
}

// pump polls every peer until a full round handles no events.
func pump(peers ...*peer) {
	for round := 0; round < 20; round++ {
		handled := 0
		for _, p := range peers {
			handled += p.mgr.Poll()
		}
		if handled == 0 {
			return
		}
	}
}

func ids(reg *roster.Registry) []transport.PeerID {
	var out []transport.PeerID
	for _, p := range reg.Players() {
		out = append(out, p.NetworkID)
	}
	return out
}

func equalIDs(got []transport.PeerID, want ...transport.PeerID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestClientReachesConnectedAtHostSpawn(t *testing.T) {
	network := transport.NewNetwork()
	spawn := physics.Vec2{X: 100, Y: 50}
	host := newPeer(t, network, "Host", spawn)
	client := newPeer(t, network, "Client", spawn)
	client.mgr.Registry().Local().Position = physics.Vec2{X: -7, Y: -7}
	client.mgr.Registry().Local().Velocity = physics.Vec2{X: 3, Y: 4}

	if err := host.mgr.StartHosting(42005); err != nil {
		t.Fatalf("host: %v", err)
	}
	if err := client.mgr.Connect("localhost", 42005); err != nil {
		t.Fatalf("connect: %v", err)
	}
	pump(host, client)

	want := []session.Status{session.Connecting, session.Authenticating, session.ConnectedToServer}
	if len(client.seen) != len(want) {
		t.Fatalf("unexpected client transitions %v", client.seen)
	}
	for i := range want {
		if client.seen[i] != want[i] {
			t.Fatalf("transition %d: want %s got %s", i, want[i], client.seen[i])
		}
	}
	local := client.mgr.Registry().Local()
	if local.Position != spawn || local.Velocity != (physics.Vec2{}) {
		t.Fatalf("expected client at host spawn with zero velocity, got %+v %+v", local.Position, local.Velocity)
	}
	hostView, ok := host.mgr.Registry().Get(2)
	if !ok || hostView.DisplayName != "Client" || hostView.Color != (roster.Color{10, 20, 30}) || hostView.Position != spawn {
		t.Fatalf("unexpected host-side player %+v", hostView)
	}
	if !equalIDs(ids(client.mgr.Registry()), 1, 2) {
		t.Fatalf("client roster %v", ids(client.mgr.Registry()))
	}
}

func TestRosterConvergesAcrossThreeClients(t *testing.T) {
	network := transport.NewNetwork()
	host := newPeer(t, network, "Host", physics.Vec2{})
	a := newPeer(t, network, "A", physics.Vec2{})
	b := newPeer(t, network, "B", physics.Vec2{})
	c := newPeer(t, network, "C", physics.Vec2{})
	_ = host.mgr.StartHosting(42005)

	_ = a.mgr.Connect("localhost", 42005)
	pump(host, a)
	if !equalIDs(ids(a.mgr.Registry()), 1, 2) {
		t.Fatalf("A must only know host and itself before others join, got %v", ids(a.mgr.Registry()))
	}

	_ = b.mgr.Connect("localhost", 42005)
	pump(host, a, b)
	_ = c.mgr.Connect("localhost", 42005)
	pump(host, a, b, c)

	for name, p := range map[string]*peer{"host": host, "A": a, "B": b, "C": c} {
		if !equalIDs(ids(p.mgr.Registry()), 1, 2, 3, 4) {
			t.Fatalf("%s roster %v", name, ids(p.mgr.Registry()))
		}
	}
	if c.mgr.Status() != session.ConnectedToServer {
		t.Fatalf("C status %s", c.mgr.Status())
	}
	//1.- C learns the roster in id order, then its own spawn.
	if !equalIDs(c.spawns, 1, 2, 3, 4) {
		t.Fatalf("C spawn order %v", c.spawns)
	}
	for _, id := range a.spawns[:2] {
		if id > 2 {
			t.Fatalf("A referenced %d before it joined: %v", id, a.spawns)
		}
	}
}

func TestDuplicateAuthIsIgnored(t *testing.T) {
	network := transport.NewNetwork()
	host := newPeer(t, network, "Host", physics.Vec2{})
	a := newPeer(t, network, "A", physics.Vec2{})
	b := newPeer(t, network, "B", physics.Vec2{})
	_ = host.mgr.StartHosting(42005)
	_ = a.mgr.Connect("localhost", 42005)
	_ = b.mgr.Connect("localhost", 42005)
	pump(host, a, b)

	sentBefore := host.bus.Metrics().Snapshot()[protocol.TagSpawnPlayer].Sent
	bSpawns := len(b.spawns)
	if err := a.bus.SendToHost(&protocol.ClientAuth{DisplayName: "Impostor", Color: 0xffffff}); err != nil {
		t.Fatalf("send: %v", err)
	}
	pump(host, a, b)

	if sent := host.bus.Metrics().Snapshot()[protocol.TagSpawnPlayer].Sent; sent != sentBefore {
		t.Fatalf("duplicate auth caused %d extra spawn sends", sent-sentBefore)
	}
	if len(b.spawns) != bSpawns {
		t.Fatal("duplicate auth must not reach other peers")
	}
	player, _ := host.mgr.Registry().Get(2)
	if player.DisplayName != "A" {
		t.Fatalf("duplicate auth renamed player to %q", player.DisplayName)
	}
}

func TestRepeatedSpawnRefreshesRemotePlayer(t *testing.T) {
	network := transport.NewNetwork()
	host := newPeer(t, network, "Host", physics.Vec2{})
	a := newPeer(t, network, "A", physics.Vec2{})
	_ = host.mgr.StartHosting(42005)
	_ = a.mgr.Connect("localhost", 42005)
	pump(host, a)

	hostPlayer := host.mgr.Registry().Local()
	hostPlayer.Position = physics.Vec2{X: 12, Y: 34}
	hostPlayer.DisplayName = "Renamed"
	_ = host.bus.Broadcast(spawnMessage(hostPlayer))
	pump(host, a)

	remote, ok := a.mgr.Registry().Get(1)
	if !ok || remote.DisplayName != "Renamed" || remote.Position != (physics.Vec2{X: 12, Y: 34}) {
		t.Fatalf("expected refreshed host player, got %+v", remote)
	}
	if a.mgr.Registry().Len() != 2 {
		t.Fatalf("refresh must not duplicate players, got %d", a.mgr.Registry().Len())
	}
}

func TestClientsIgnoreSpawnFromPeers(t *testing.T) {
	network := transport.NewNetwork()
	host := newPeer(t, network, "Host", physics.Vec2{})
	_ = host.mgr.StartHosting(42005)

	//1.- The host refuses spawn messages: they only flow host to client.
	payload := protocol.Encode(&protocol.SpawnPlayer{ID: 9, DisplayName: "Ghost"})
	if err := host.bus.Dispatch(2, payload); err == nil {
		t.Fatal("expected host to refuse a spawn message")
	}
	if _, ok := host.mgr.Registry().Get(9); ok {
		t.Fatal("ghost player registered")
	}
}
