package toolloop

import "fmt"

// State is a phase of one run.
type State int

const (
	// StateAwaitingModel sends the conversation to the model endpoint.
	StateAwaitingModel State = iota
	// StateExecutingTools runs the tool requests of the last assistant turn.
	StateExecutingTools
	// StateDone holds a final answer.
	StateDone
	// StateFailed holds a run error.
	StateFailed
)

// String returns the state name used in logs and span attributes.
func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateExecutingTools:
		return "EXECUTING_TOOLS"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

//nolint:gochecknoglobals // static transition table
var validTransitions = map[State][]State{
	StateAwaitingModel:  {StateExecutingTools, StateDone, StateFailed},
	StateExecutingTools: {StateAwaitingModel, StateFailed},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
