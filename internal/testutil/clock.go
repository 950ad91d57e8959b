// Package testutil provides deterministic clocks and identifier generators
// for tests.
package testutil

import (
	"sync"
	"sync/atomic"
	"time"
)

// DeterministicClock hands out 1, 2, 3, ... and satisfies
// reconcile.Sequencer, so pass transitions carry stable sequence numbers.
type DeterministicClock struct {
	seq atomic.Int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock.
func (c *DeterministicClock) Next() int64 { return c.seq.Add(1) }

// Current is the last value Next returned, or 0.
func (c *DeterministicClock) Current() int64 { return c.seq.Load() }

// Epoch is the default start of a SteppingTime.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// SteppingTime stands in for time.Now in the record store: each call is one
// step after the previous.
type SteppingTime struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewSteppingTime starts at start (Epoch when zero) and advances by step
// (one second when zero).
func NewSteppingTime(start time.Time, step time.Duration) *SteppingTime {
	if start.IsZero() {
		start = Epoch
	}
	if step == 0 {
		step = time.Second
	}
	return &SteppingTime{next: start, step: step}
}

// Now returns the current instant and advances.
func (t *SteppingTime) Now() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.next
	t.next = now.Add(t.step)
	return now
}
