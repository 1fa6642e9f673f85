package chore

import (
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

// Class is the scanner's verdict for one assignee's current cycle.
type Class string

const (
	ClassNone           Class = "none"
	ClassDueSoon        Class = "due_soon"
	ClassOverdueCrossed Class = "overdue_threshold_crossed"
)

// ScanResult classifies one (chore, assignee) pair.
type ScanResult struct {
	ChoreID string `json:"chore_id"`
	UserID  string `json:"user_id"`
	Cycle   Cycle  `json:"cycle"`
	Class   Class  `json:"class"`
}

// Scan classifies every assignee of every chore against now. Rotation chores
// only classify the turn holder. Results follow chore order, then assignee
// order; pairs without an open cycle are omitted.
func Scan(chores []model.Chore, now time.Time) []ScanResult {
	var out []ScanResult
	for _, c := range chores {
		for _, uid := range c.Assignees {
			cyc, ok := CycleAt(c, uid, now)
			if !ok {
				continue
			}
			if c.Criteria == model.CriteriaRotation && TurnHolder(c, cyc.ID) != uid {
				continue
			}
			out = append(out, ScanResult{
				ChoreID: c.ID,
				UserID:  uid,
				Cycle:   cyc,
				Class:   Classify(c.Schedule, cyc, now),
			})
		}
	}
	return out
}

// Classify places now relative to the cycle's due timestamp. Grace is left to
// the workflow manager, which distinguishes overdue from missed.
func Classify(s model.Schedule, cyc Cycle, now time.Time) Class {
	if now.After(cyc.Due) {
		return ClassOverdueCrossed
	}
	if !now.Before(cyc.Due.Add(-s.SoonWindow())) {
		return ClassDueSoon
	}
	return ClassNone
}
