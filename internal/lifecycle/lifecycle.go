// Package lifecycle tracks the process phase for health reporting.
package lifecycle

import "sync/atomic"

// Phase is the coarse process state reported by /health.
type Phase int32

const (
	// PhaseStarting lasts until the first weather flow has finished.
	PhaseStarting Phase = iota
	PhaseReady
	// PhaseDraining begins on SIGTERM/SIGINT; new traffic should go elsewhere.
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseDraining:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase. Draining is terminal: once set, later
// calls cannot move the process back to starting or ready.
func SetPhase(p Phase) {
	for {
		cur := phase.Load()
		if Phase(cur) == PhaseDraining && p != PhaseDraining {
			return
		}
		if phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

// CurrentPhase returns the recorded phase.
func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return CurrentPhase() == PhaseDraining
}

// reset returns to PhaseStarting. Tests only.
func reset() {
	phase.Store(int32(PhaseStarting))
}
