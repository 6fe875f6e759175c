package upload

import "fmt"

// State is the position of a job in the upload state machine.
type State int

const (
	StateInvalid State = iota
	StateStarted
	StateIntro
	StateFile
	StateOutro
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateStarted:
		return "started"
	case StateIntro:
		return "intro"
	case StateFile:
		return "file"
	case StateOutro:
		return "outro"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// ValidTransitions lists the forward edges of the machine. The short-write
// retry path stays inside a state and is not an edge.
var ValidTransitions = map[State][]State{
	StateInvalid: {StateStarted, StateError},
	StateStarted: {StateIntro, StateError},
	StateIntro:   {StateFile, StateOutro, StateError},
	StateFile:    {StateOutro, StateError},
	StateOutro:   {StateComplete, StateError},
}

func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
