package testutil

import "sync"

// DeterministicClock is a resettable receipt sequencer for tests.
//
// It satisfies vm.Sequencer. Unlike vm.Clock it can be rewound, so one
// scenario run twice against fresh ledgers stamps identical seq values.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock starting at 0.
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to seq. Next() then returns seq+1.
func (c *DeterministicClock) Reset(seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
}
