// Package testutil holds the deterministic stand-ins the scenario harness
// runs with, so recorded traces are byte-identical across runs.
package testutil

import (
	"sync"

	"github.com/roach88/hookrun/internal/engine"
)

var _ engine.SequenceClock = (*DeterministicClock)(nil)

// DeterministicClock is an engine.SequenceClock that starts at zero and can
// be rewound, so one scenario replayed twice assigns the same seq to every
// trace record.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new value.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out, or 0.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to zero.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
