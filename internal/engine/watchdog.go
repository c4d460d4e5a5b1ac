package engine

// Supervisor tracks when the watchdog was last fed and detects
// starvation. Feeding and checking are separate so the scheduler can
// feed on its own cadence (half the timeout) while the starvation check
// runs every tick. Not safe for concurrent use; the engine's mutex
// guards it.
type Supervisor struct {
	lastFed uint64
	timeout uint64 // ticks
}

// NewSupervisor creates a supervisor with the given timeout in ticks.
func NewSupervisor(timeoutTicks uint64) *Supervisor {
	return &Supervisor{timeout: timeoutTicks}
}

// Feed records the tick at which the watchdog was serviced.
func (s *Supervisor) Feed(tick uint64) {
	s.lastFed = tick
}

// LastFed returns the tick of the most recent feed.
func (s *Supervisor) LastFed() uint64 {
	return s.lastFed
}

// Starved reports whether more than the timeout has elapsed since the
// last feed. Starvation is an error event, not a fatal condition; the
// fault tracker decides when repeated starvation escalates.
func (s *Supervisor) Starved(tick uint64) bool {
	return tick-s.lastFed > s.timeout
}
