package vm

import "sync/atomic"

// Sequencer hands out receipt sequence numbers.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is the monotonic logical clock that stamps receipts.
//
// Every journaled transaction, committed or failed, takes the next seq.
// Ordering never depends on wall time, so a journal replays in the same
// order on any host.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the runtime's single-writer lock means one caller at a time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start.
// Used when reopening a ledger that already has receipts.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
