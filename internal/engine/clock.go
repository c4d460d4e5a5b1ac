// Package engine implements the tick-driven control core of the
// telemetry agent: a logical clock, a per-duty scheduler, the lifecycle
// state machine, fault escalation, and watchdog supervision.
//
// One tick is one iteration of the engine loop, nominally 1 ms. All
// scheduling decisions are made against tick counts, never wall-clock
// time, so the core behaves identically whether driven by a real ticker
// or stepped directly from tests.
package engine

// Clock is the engine's monotonic logical clock. Ticks are 64-bit so
// wraparound is out of reach for any realistic run length and needs no
// handling.
type Clock struct {
	tick uint64
}

// Advance increments the clock and returns the new tick. No two calls
// return the same value.
func (c *Clock) Advance() uint64 {
	c.tick++
	return c.tick
}

// Now returns the current tick without advancing.
func (c *Clock) Now() uint64 {
	return c.tick
}
