package room

import "errors"

// Phase is a room's position in its lifecycle state machine.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseRoleNegotiation
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseRoleNegotiation:
		return "role_negotiation"
	case PhaseActive:
		return "active"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// ErrPhaseTransition is returned when a lifecycle transition is not allowed.
var ErrPhaseTransition = errors.New("phase transition not allowed")

// Forward-only lifecycle; any phase may close.
var phaseTransitions = map[Phase][]Phase{
	PhaseOpen:            {PhaseRoleNegotiation, PhaseClosed},
	PhaseRoleNegotiation: {PhaseActive, PhaseClosed},
	PhaseActive:          {PhaseClosed},
}

func canTransition(from, to Phase) bool {
	for _, allowed := range phaseTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
