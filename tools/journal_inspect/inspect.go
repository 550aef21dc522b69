package journalinspect

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"driftpursuit/netplay/internal/journal"
	"driftpursuit/netplay/internal/weapon"
)

// Mismatch describes a recorded shot that did not re-simulate to the same outcome.
type Mismatch struct {
	Index   int    `json:"index"`
	Tick    uint64 `json:"tick"`
	Shooter int32  `json:"shooter"`
	Weapon  string `json:"weapon"`
	Reason  string `json:"reason"`
}

// Report summarises a bundle and the outcome of re-simulating its shots.
type Report struct {
	Manifest   journal.Manifest `json:"manifest"`
	Complete   bool             `json:"complete"`
	Events     int              `json:"events"`
	EventTypes map[string]int   `json:"event_types"`
	Fires      int              `json:"fires"`
	Verified   int              `json:"verified"`
	Mismatches []Mismatch       `json:"mismatches,omitempty"`
}

// Open loads the bundle at path, which may name the directory or its manifest.
func Open(path string) (*journal.Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	return journal.Load(dir)
}

// Verify re-runs every recorded shot through the weapon model and compares
// the recoil and pellet count bit for bit.
func Verify(j *journal.Journal) Report {
	report := Report{
		Manifest:   j.Manifest,
		Complete:   j.Complete,
		Events:     len(j.Events),
		EventTypes: make(map[string]int),
		Fires:      len(j.Fires),
	}
	for _, ev := range j.Events {
		report.EventTypes[ev.Type]++
	}
	for i, frame := range j.Fires {
		if reason := resimulate(frame); reason != "" {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Index:   i,
				Tick:    frame.Tick,
				Shooter: frame.Shooter,
				Weapon:  frame.Weapon,
				Reason:  reason,
			})
			continue
		}
		report.Verified++
	}
	return report
}

func resimulate(frame journal.FireFrame) string {
	spec, err := weapon.Lookup(frame.Weapon)
	if err != nil {
		return err.Error()
	}
	//1.- The frame stores the state captured before the shot, so Compute is
	// called with exactly the inputs the peer used.
	d := weapon.Compute(spec, frame.SpreadBonus, frame.Recoil, weapon.Shot{
		Aim:         frame.Aim,
		FacingRight: frame.FacingRight,
		Seed:        frame.Seed,
	})
	if len(d.Pellets) != int(frame.Pellets) {
		return fmt.Sprintf("pellets %d, recorded %d", len(d.Pellets), frame.Pellets)
	}
	if math.Float32bits(d.RecoilDelta) != math.Float32bits(frame.RecoilDelta) {
		return fmt.Sprintf("recoil delta %v, recorded %v", d.RecoilDelta, frame.RecoilDelta)
	}
	return ""
}
