// Package simulation drives the single simulation goroutine at a fixed timestep.
package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the simulation by one fixed timestep.
type StepFunc func(step time.Duration)

// maxCatchUp bounds how many steps one wake-up may run after a stall.
const maxCatchUp = 5

// Stats summarises observed frame costs.
type Stats struct {
	Frames  uint64
	Skipped uint64
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
}

// Loop calls a StepFunc at a fixed frequency on the goroutine running Run.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	now      func() time.Time

	mu    sync.Mutex
	stats Stats
	total time.Duration
}

// NewLoop configures a loop that targets targetHz frames per second.
func NewLoop(targetHz float64, step StepFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{step: interval, stepFunc: step, now: time.Now}
}

// Run ticks until ctx is cancelled and returns its error.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()

	last := l.now()
	var accumulator time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			//1.- Accumulate elapsed time and run fixed steps while catching up.
			now := l.now()
			accumulator += now.Sub(last)
			last = now
			steps := 0
			for accumulator >= l.step {
				if steps == maxCatchUp {
					//2.- Drop the backlog rather than spiral after a long stall.
					l.skip(uint64(accumulator / l.step))
					accumulator %= l.step
					break
				}
				l.Tick()
				accumulator -= l.step
				steps++
			}
		}
	}
}

// Tick runs exactly one step and records its cost.
func (l *Loop) Tick() {
	started := l.now()
	l.stepFunc(l.step)
	l.observe(l.now().Sub(started))
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}

// Stats returns a copy of the frame statistics.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) observe(cost time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Frames++
	l.total += cost
	l.stats.Average = l.total / time.Duration(l.stats.Frames)
	l.stats.Last = cost
	if cost > l.stats.Max {
		l.stats.Max = cost
	}
}

func (l *Loop) skip(n uint64) {
	l.mu.Lock()
	l.stats.Skipped += n
	l.mu.Unlock()
}
