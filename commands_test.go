package main

import (
	"errors"
	"math"
	"strings"
	"testing"

	configpkg "driftpursuit/netplay/internal/config"
	"driftpursuit/netplay/internal/logging"
	"driftpursuit/netplay/internal/node"
	"driftpursuit/netplay/internal/transport"
)

func TestParseCommand(t *testing.T) {
	tests := map[string]struct {
		line    string
		kind    commandKind
		address string
		err     error
	}{
		"fire":          {line: "fire", kind: cmdFire},
		"upper_case":    {line: "  RELOAD ", kind: cmdReload},
		"join":          {line: "join 10.0.0.2", kind: cmdJoin, address: "10.0.0.2"},
		"empty":         {line: "   ", err: errCommandEmpty},
		"unknown":       {line: "dance", err: errCommandUnknown},
		"join_no_addr":  {line: "join", err: errCommandArgs},
		"fire_with_arg": {line: "fire now", err: errCommandArgs},
		"aim_no_angle":  {line: "aim", err: errCommandArgs},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cmd, err := parseCommand(tc.line)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.line, err)
			}
			if cmd.kind != tc.kind || cmd.address != tc.address {
				t.Fatalf("unexpected command %+v", cmd)
			}
		})
	}
}

func TestParseAimConvertsDegrees(t *testing.T) {
	cmd, err := parseCommand("aim 180")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if math.Abs(float64(cmd.aim)-math.Pi) > 1e-6 {
		t.Fatalf("expected pi radians, got %v", cmd.aim)
	}
	if _, err := parseCommand("aim north"); err == nil {
		t.Fatal("expected non-numeric aim to fail")
	}
	if _, err := parseCommand("aim NaN"); err == nil {
		t.Fatal("expected NaN aim to fail")
	}
}

func newConsoleNode(t *testing.T, network *transport.Network, name string) *node.Node {
	t.Helper()
	cfg, err := configpkg.LoadFrom(func(key string) string {
		if key == "NETPLAY_NAME" {
			return name
		}
		return ""
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	n, err := node.New(cfg, network.NewTransport(), node.Options{Logger: logging.NewTestLogger()})
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func run(t *testing.T, n *node.Node, line string) string {
	t.Helper()
	cmd, err := parseCommand(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	out, err := cmd.apply(n)
	if err != nil {
		t.Fatalf("apply %q: %v", line, err)
	}
	return out
}

func TestConsoleDrivesASession(t *testing.T) {
	network := transport.NewNetwork()
	host := newConsoleNode(t, network, "Host")
	client := newConsoleNode(t, network, "Ada")

	//1.- Host and join through console commands.
	run(t, host, "host")
	run(t, client, "join localhost")
	for i := 0; i < 5; i++ {
		host.Step(frame)
		client.Step(frame)
	}
	status := run(t, client, "status")
	if !strings.HasPrefix(status, "ConnectedToServer local_id=2") || !strings.Contains(status, "*[2] Ada") {
		t.Fatalf("unexpected status output:\n%s", status)
	}

	//2.- A shot shows up in the traffic counters.
	if out := run(t, client, "fire"); out != "" {
		t.Fatalf("expected shot, got %q", out)
	}
	if stats := run(t, client, "stats"); !strings.Contains(stats, "fire") {
		t.Fatalf("expected fire traffic, got:\n%s", stats)
	}

	//3.- Leaving returns the client to NoConnection.
	run(t, client, "leave")
	if !strings.HasPrefix(run(t, client, "status"), "NoConnection") {
		t.Fatal("client did not leave")
	}
	if stats := run(t, client, "stats"); stats != "no traffic" {
		t.Fatalf("traffic survived the session:\n%s", stats)
	}
}

func TestConsoleReportsEmptyTraffic(t *testing.T) {
	n := newConsoleNode(t, transport.NewNetwork(), "Solo")
	if out := run(t, n, "stats"); out != "no traffic" {
		t.Fatalf("unexpected stats %q", out)
	}
}
