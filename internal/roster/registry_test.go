package roster

import (
	"errors"
	"testing"

	"driftpursuit/netplay/internal/physics"
	"driftpursuit/netplay/internal/transport"
	"driftpursuit/netplay/internal/weapon"
)

func pistol(t *testing.T) weapon.Spec {
	t.Helper()
	spec, err := weapon.Lookup("pistol")
	if err != nil {
		t.Fatalf("lookup pistol: %v", err)
	}
	return spec
}

func TestRegistryAddGetRemove(t *testing.T) {
	local := NewLocalPlayer("Host", Color{255, 0, 0}, pistol(t))
	reg := NewRegistry(local)
	if local.NetworkID != transport.Unassigned {
		t.Fatalf("local player starts unassigned, got %d", local.NetworkID)
	}

	if err := reg.Add(transport.HostID, local); err != nil {
		t.Fatalf("add local: %v", err)
	}
	remote := NewRemotePlayer(0, "Ada", Color{0, 255, 0}, physics.Vec2{X: 5}, pistol(t))
	if err := reg.Add(3, remote); err != nil {
		t.Fatalf("add remote: %v", err)
	}
	if remote.NetworkID != 3 {
		t.Fatalf("expected Add to stamp the id, got %d", remote.NetworkID)
	}
	if err := reg.Add(3, remote); !errors.Is(err, ErrDuplicatePlayer) {
		t.Fatalf("expected ErrDuplicatePlayer, got %v", err)
	}

	if got, ok := reg.Get(3); !ok || got != remote {
		t.Fatal("expected to find remote player")
	}
	if _, err := reg.Require(9); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected two players, got %d", reg.Len())
	}

	if !reg.Remove(3) || reg.Remove(3) {
		t.Fatal("expected remove to succeed once and then be a no-op")
	}
}

func TestRegistryPlayersSortedAndSnapshot(t *testing.T) {
	local := NewLocalPlayer("Me", Color{1, 2, 3}, pistol(t))
	reg := NewRegistry(local)
	_ = reg.Add(4, NewRemotePlayer(0, "D", Color{}, physics.Vec2{}, pistol(t)))
	_ = reg.Add(transport.HostID, NewRemotePlayer(0, "Host", Color{}, physics.Vec2{}, pistol(t)))
	_ = reg.Add(2, local)

	players := reg.Players()
	if len(players) != 3 || players[0].NetworkID != 1 || players[1].NetworkID != 2 || players[2].NetworkID != 4 {
		t.Fatalf("expected players sorted by id, got %+v", players)
	}

	snapshot := reg.Snapshot()
	if !snapshot[1].Local || snapshot[1].DisplayName != "Me" || snapshot[1].Weapon != "pistol" || snapshot[1].Rounds == 0 {
		t.Fatalf("unexpected local view %+v", snapshot[1])
	}
	local.Position = physics.Vec2{X: 99}
	if snapshot[1].Position.X == 99 {
		t.Fatal("snapshot must not alias live players")
	}
}

func TestRegistryClearResetsLocalIdentity(t *testing.T) {
	local := NewLocalPlayer("Me", Color{}, pistol(t))
	reg := NewRegistry(local)
	_ = reg.Add(2, local)
	_ = reg.Add(transport.HostID, NewRemotePlayer(0, "Host", Color{}, physics.Vec2{}, pistol(t)))

	reg.Clear()
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	if local.NetworkID != transport.Unassigned {
		t.Fatalf("expected local id reset, got %d", local.NetworkID)
	}
	if reg.Local() != local {
		t.Fatal("local player survives Clear")
	}
}

func TestColorPacking(t *testing.T) {
	c := Color{0x12, 0xab, 0xff}
	if c.Pack() != 0x12abff {
		t.Fatalf("unexpected pack %x", c.Pack())
	}
	if UnpackColor(0x12abff) != c {
		t.Fatal("unpack mismatch")
	}
	if c.Hex() != "#12abff" {
		t.Fatalf("unexpected hex %q", c.Hex())
	}
}
