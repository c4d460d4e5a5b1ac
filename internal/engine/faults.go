package engine

import "fmt"

// Fault identifies the source of a recoverable error. Every fault is
// counted; none is fatal on its own. Low-voltage and watchdog
// starvation share the same recoverable path as publish failures so the
// escalation policy stays uniform.
type Fault uint8

const (
	FaultPublish Fault = iota + 1
	FaultWatchdogStarved
	FaultLowVoltage
	FaultSensor
)

// String returns the fault name used in logs.
func (f Fault) String() string {
	switch f {
	case FaultPublish:
		return "publish"
	case FaultWatchdogStarved:
		return "watchdog_starved"
	case FaultLowVoltage:
		return "low_voltage"
	case FaultSensor:
		return "sensor"
	default:
		return fmt.Sprintf("fault(%d)", uint8(f))
	}
}

// Tracker counts recoverable errors and answers the escalation
// question. It never acts on escalation itself; the state machine
// consumes the signal, which keeps the two independently testable.
// Not safe for concurrent use; the engine's mutex guards it.
type Tracker struct {
	errors    uint32
	resets    uint32
	threshold uint32
}

// NewTracker creates a tracker with the given escalation threshold.
// Escalation triggers when the error count exceeds (not reaches) the
// threshold: with threshold 5, the sixth error escalates.
func NewTracker(threshold int) *Tracker {
	return &Tracker{threshold: uint32(threshold)}
}

// Record counts one error and returns the new count.
func (t *Tracker) Record(f Fault) uint32 {
	t.errors++
	return t.errors
}

// ShouldEscalate reports whether the error count has exceeded the
// threshold.
func (t *Tracker) ShouldEscalate() bool {
	return t.errors > t.threshold
}

// Reset zeroes the error count and increments the reset counter.
func (t *Tracker) Reset() {
	t.errors = 0
	t.resets++
}

// Errors returns the error count since the last reset.
func (t *Tracker) Errors() uint32 {
	return t.errors
}

// Resets returns the number of system resets performed.
func (t *Tracker) Resets() uint32 {
	return t.resets
}

// RestoreResets seeds the reset counter from persisted state, so the
// count survives process restarts.
func (t *Tracker) RestoreResets(n uint32) {
	t.resets = n
}
