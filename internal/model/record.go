package model

import "time"

// VisibleState is the single state exposed for a (chore, assignee) pair.
type VisibleState string

const (
	StatePending          VisibleState = "pending"
	StateDue              VisibleState = "due"
	StateClaimed          VisibleState = "claimed"
	StateApproved         VisibleState = "approved"
	StateCompleted        VisibleState = "completed"
	StateCompletedByOther VisibleState = "completed_by_other"
	StateApprovedInPart   VisibleState = "approved_in_part"
	StateOverdue          VisibleState = "overdue"
	StateMissed           VisibleState = "missed"
)

// AssigneeRecord holds the mutable workflow state for one (chore, user) cell.
// Claim, approval, overdue, missed, reset and fulfilled facts describe Cycle only; the
// Last* timestamps and MissedCount are history and survive resets.
type AssigneeRecord struct {
	ChoreID         string       `json:"chore_id"`
	UserID          string       `json:"user_id"`
	Cycle           string       `json:"cycle"`
	ClaimedAt       *time.Time   `json:"claimed_at"`
	ApprovedAt      *time.Time   `json:"approved_at"`
	ApprovedBy      string       `json:"approved_by,omitempty"`
	OverdueSince    *time.Time   `json:"overdue_since"`
	Missed          bool         `json:"missed"`
	ResetAt         *time.Time   `json:"reset_at"`
	// Fulfilled marks a cycle that was completed before an upon_completion
	// reset reopened it.
	Fulfilled       bool         `json:"fulfilled"`
	LastClaimedAt   *time.Time   `json:"last_claimed_at"`
	LastApprovedAt  *time.Time   `json:"last_approved_at"`
	LastCompletedAt *time.Time   `json:"last_completed_at"`
	MissedCount     int          `json:"missed_count"`
	State           VisibleState `json:"current_cycle_state"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ClearCycle drops the cycle-scoped facts and keeps history.
func (r *AssigneeRecord) ClearCycle() {
	r.Cycle = ""
	r.ClaimedAt = nil
	r.ApprovedAt = nil
	r.ApprovedBy = ""
	r.OverdueSince = nil
	r.Missed = false
	r.ResetAt = nil
	r.Fulfilled = false
}
