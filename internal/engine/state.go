package engine

import (
	"errors"
	"fmt"
)

// State is the system lifecycle state. Exactly one is current at a
// time, owned by the Machine and mutated only through its methods.
type State uint8

const (
	StateInit State = iota
	StateReady
	StateTracking
	StateError
	StateSleep
	StateShutdown
)

// String returns the lowercase state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateTracking:
		return "tracking"
	case StateError:
		return "error"
	case StateSleep:
		return "sleep"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrIllegalTransition is returned when a transition outside the
// lifecycle table is attempted. The machine stays in its current state;
// callers report the attempt but do not treat it as fatal.
var ErrIllegalTransition = errors.New("illegal state transition")

// Machine holds the current lifecycle state and enforces the transition
// table:
//
//	Init → Ready            startup complete
//	Ready → Tracking        first successful sample
//	Ready|Tracking → Sleep  power-save command
//	Sleep → prior           wake command (via Wake)
//	any non-Shutdown → Error    fault escalation
//	any non-Shutdown → Shutdown terminal stop
//	Error → Init            only via Reset
//
// Not safe for concurrent use; the engine's mutex guards it.
type Machine struct {
	current State
	prior   State // state to return to on wake
}

// NewMachine creates a machine in the Init state.
func NewMachine() *Machine {
	return &Machine{current: StateInit}
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}

// Transition moves to the requested state if the lifecycle table allows
// it. A transition to the current state is a no-op. Illegal transitions
// leave the state unchanged and return ErrIllegalTransition.
func (m *Machine) Transition(to State) error {
	from := m.current
	if from == to {
		return nil
	}
	if !legal(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if to == StateSleep {
		m.prior = from
	}
	m.current = to
	return nil
}

// Wake returns from Sleep to the state that was active when sleep
// began. Any other current state is an illegal wake.
func (m *Machine) Wake() error {
	if m.current != StateSleep {
		return fmt.Errorf("%w: wake from %s", ErrIllegalTransition, m.current)
	}
	m.current = m.prior
	return nil
}

// Reset rewinds to Init. This is the only path out of Error and is
// reserved for the engine's full system reset.
func (m *Machine) Reset() {
	m.current = StateInit
	m.prior = StateInit
}

func legal(from, to State) bool {
	if from == StateShutdown {
		return false
	}
	switch to {
	case StateReady:
		return from == StateInit
	case StateTracking:
		return from == StateReady
	case StateSleep:
		return from == StateReady || from == StateTracking
	case StateError:
		return true
	case StateShutdown:
		return true
	default:
		// Init is reachable only through Reset.
		return false
	}
}
