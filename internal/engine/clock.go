package engine

import "sync/atomic"

// Clock is the ledger's slot counter.
//
// Every executed transaction lands in its own slot, taken from Next(). The
// current slot also selects the latest blockhash, so slots are logical and
// never derived from wall time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The Engine still takes its own lock around slot assignment so that the
// blockhash check and the slot it validates against cannot interleave.
type Clock struct {
	slot atomic.Int64
}

// NewClock creates a new clock at slot 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at a specific slot.
// Used when reopening a ledger to resume after its last recorded slot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.slot.Store(start)
	return c
}

// Next advances to and returns the next slot.
func (c *Clock) Next() int64 {
	return c.slot.Add(1)
}

// Current returns the current slot without advancing.
func (c *Clock) Current() int64 {
	return c.slot.Load()
}
