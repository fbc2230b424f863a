package engine

import "sync/atomic"

// SequenceClock numbers trace records. Every call to Next returns a value
// larger than any returned before by the same clock.
type SequenceClock interface {
	Next() int64
}

// Clock is the runner's default SequenceClock: an atomic counter shared by
// every run, nested or concurrent, so one Runner's records have a total
// order independent of wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock whose first Next is last+1, for appending to a
// store that already holds records up to last.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
