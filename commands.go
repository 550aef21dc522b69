package main

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"driftpursuit/netplay/internal/node"
	"driftpursuit/netplay/internal/protocol"
)

var (
	errCommandEmpty   = errors.New("empty command")
	errCommandUnknown = errors.New("unknown command")
	errCommandArgs    = errors.New("wrong number of arguments")
)

type commandKind int

const (
	cmdFire commandKind = iota + 1
	cmdHold
	cmdRelease
	cmdAim
	cmdReload
	cmdHost
	cmdJoin
	cmdLeave
	cmdStatus
	cmdStats
	cmdQuit
)

var commandNames = map[string]commandKind{
	"fire":    cmdFire,
	"hold":    cmdHold,
	"release": cmdRelease,
	"aim":     cmdAim,
	"reload":  cmdReload,
	"host":    cmdHost,
	"join":    cmdJoin,
	"leave":   cmdLeave,
	"status":  cmdStatus,
	"stats":   cmdStats,
	"quit":    cmdQuit,
}

// command is one parsed console line.
type command struct {
	kind    commandKind
	aim     float32
	address string
}

// parseCommand decodes a console line such as "aim 45" or "join 10.0.0.2".
func parseCommand(line string) (command, error) {
	//1.- Split on whitespace and resolve the verb before looking at arguments.
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errCommandEmpty
	}
	kind, ok := commandNames[strings.ToLower(fields[0])]
	if !ok {
		return command{}, fmt.Errorf("%w: %q", errCommandUnknown, fields[0])
	}
	cmd := command{kind: kind}
	args := fields[1:]

	//2.- Only aim and join take an argument.
	switch kind {
	case cmdAim:
		if len(args) != 1 {
			return command{}, fmt.Errorf("%w: aim <degrees>", errCommandArgs)
		}
		degrees, err := strconv.ParseFloat(args[0], 64)
		if err != nil || math.IsNaN(degrees) || math.IsInf(degrees, 0) {
			return command{}, fmt.Errorf("invalid aim %q", args[0])
		}
		cmd.aim = float32(degrees * math.Pi / 180)
	case cmdJoin:
		if len(args) != 1 {
			return command{}, fmt.Errorf("%w: join <address>", errCommandArgs)
		}
		cmd.address = args[0]
	default:
		if len(args) != 0 {
			return command{}, fmt.Errorf("%w: %s takes none", errCommandArgs, fields[0])
		}
	}
	return cmd, nil
}

// apply runs cmd against n and returns a line for the console, if any.
func (c command) apply(n *node.Node) (string, error) {
	rep := n.Replicator()
	switch c.kind {
	case cmdFire:
		fired := rep.PressTrigger()
		rep.ReleaseTrigger()
		if !fired {
			return "weapon not ready", nil
		}
	case cmdHold:
		rep.PressTrigger()
	case cmdRelease:
		rep.ReleaseTrigger()
	case cmdAim:
		rep.SetAim(c.aim)
	case cmdReload:
		if !rep.Reload() {
			return "reload not possible", nil
		}
	case cmdHost:
		return "", n.Host()
	case cmdJoin:
		return "", n.Join(c.address)
	case cmdLeave:
		return "", n.Leave()
	case cmdStatus:
		return describeStatus(n), nil
	case cmdStats:
		return describeTraffic(n), nil
	}
	return "", nil
}

func describeStatus(n *node.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s local_id=%d tick=%d", n.Session().Status(), n.Session().LocalID(), n.Tick())
	for _, p := range n.Registry().Snapshot() {
		marker := ""
		if p.Local {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n  %s[%d] %s %s (%.1f, %.1f) %s rounds=%d", marker, p.ID, p.DisplayName, p.Color.Hex(), p.Position.X, p.Position.Y, p.Weapon, p.Rounds)
	}
	return b.String()
}

func describeTraffic(n *node.Node) string {
	snapshot := n.Bus().Metrics().Snapshot()
	tags := make([]protocol.Tag, 0, len(snapshot))
	for tag := range snapshot {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	if len(tags) == 0 {
		return "no traffic"
	}
	var b strings.Builder
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte('\n')
		}
		t := snapshot[tag]
		fmt.Fprintf(&b, "%-12s sent=%d/%dB received=%d/%dB dropped=%d", tag, t.Sent, t.SentBytes, t.Received, t.ReceivedBytes, t.Dropped)
	}
	return b.String()
}
