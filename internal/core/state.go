package core

// State is a step of the triage state machine
type State int

const (
	StateFetching State = iota
	StateClassifying
	StateApplying
	StateCleanup
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateApplying:
		return "applying"
	case StateCleanup:
		return "cleanup"
	case StateDone:
		return "done"
	default:
		return "invalid"
	}
}

// next returns the state that follows s. Applying loops back to
// Classifying while the batch still has unlabeled emails.
func next(s State, b *Batch) State {
	switch s {
	case StateFetching:
		return StateClassifying
	case StateClassifying:
		return StateApplying
	case StateApplying:
		if b != nil && !b.Done() {
			return StateClassifying
		}
		return StateCleanup
	default:
		return StateDone
	}
}
