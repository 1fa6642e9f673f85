package signal

import "github.com/dukerupert/chorekeeper/internal/model"

// Lifecycle signals may be followed by further transitions inside the same
// operation (an upon_completion reset, a peer's approval), so they are checked
// against the set of states the assignee can legitimately settle in.
var allowed = map[Kind][]model.VisibleState{
	ChoreClaimed:     {model.StateClaimed, model.StateOverdue, model.StateMissed},
	ChoreApproved:    {model.StateApproved, model.StateApprovedInPart, model.StateCompleted, model.StatePending, model.StateDue},
	ChoreCompleted:   {model.StateApproved, model.StateCompleted, model.StatePending, model.StateDue},
	ChoreDisapproved: {model.StatePending, model.StateDue, model.StateOverdue, model.StateMissed},
	ChoreReset:       {model.StatePending, model.StateDue},
}

// Settled reports whether the assignee's state after the emitting operation
// settled is consistent with sig. Overdue and missed signals must name the
// state they escalated to. A reset must leave the assignee pending or due and
// carry that state in its payload. Due-soon signals are advisory.
func Settled(sig Signal, state model.VisibleState) bool {
	switch sig.Kind {
	case ChoreOverdue:
		return state == model.StateOverdue && sig.State() == state
	case ChoreMissed:
		return state == model.StateMissed && sig.State() == state
	case ChoreReset:
		if sig.State() != state {
			return false
		}
	case ChoreDueSoon:
		return true
	}
	for _, s := range allowed[sig.Kind] {
		if s == state {
			return true
		}
	}
	return false
}
