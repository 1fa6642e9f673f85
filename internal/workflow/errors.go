package workflow

import (
	"errors"
	"fmt"
)

// Code categorizes workflow errors.
type Code string

const (
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
)

// Transition names the precondition an InvalidTransition error failed.
type Transition string

const (
	AlreadyClaimed        Transition = "already_claimed"
	AlreadyClaimedByOther Transition = "already_claimed_by_other"
	AlreadyApproved       Transition = "already_approved"
	CycleCompleted        Transition = "cycle_completed"
	CycleMissed           Transition = "cycle_missed"
	NotYourTurn           Transition = "not_your_turn"
	NotClaimed            Transition = "not_claimed"
	NotAssigned           Transition = "not_assigned"
	StaleCycle            Transition = "stale_cycle"
	NoOpenCycle           Transition = "no_open_cycle"
)

// Error is returned when an operation is refused. Nothing has been persisted
// or emitted when an Error comes back.
type Error struct {
	Code       Code
	Transition Transition
	Reason     string
	ChoreID    string
	UserID     string
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Transition != "" {
		msg += "(" + string(e.Transition) + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.ChoreID != "" {
		msg += fmt.Sprintf(" (chore=%s, user=%s)", e.ChoreID, e.UserID)
	}
	return msg
}

// ErrNotFound is wrapped when a chore or user does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid is wrapped when a management request is malformed.
var ErrInvalid = errors.New("invalid request")

func unauthorized(choreID, userID, reason string) *Error {
	return &Error{Code: CodeUnauthorized, Reason: reason, ChoreID: choreID, UserID: userID}
}

func invalid(choreID, userID string, t Transition) *Error {
	return &Error{Code: CodeInvalidTransition, Transition: t, ChoreID: choreID, UserID: userID}
}

// IsUnauthorized reports whether err is a workflow authorization refusal.
func IsUnauthorized(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Code == CodeUnauthorized
}

// IsInvalidTransition reports whether err is a refused state transition.
func IsInvalidTransition(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Code == CodeInvalidTransition
}

// TransitionOf returns the transition sub-code carried by err, or "".
func TransitionOf(err error) Transition {
	var we *Error
	if errors.As(err, &we) {
		return we.Transition
	}
	return ""
}
