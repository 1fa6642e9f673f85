package chore

import (
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

// Resolution is the visible state of one assignee plus the cycle it was
// computed against.
type Resolution struct {
	UserID      string             `json:"user_id"`
	State       model.VisibleState `json:"state"`
	Cycle       Cycle              `json:"cycle"`
	HasCycle    bool               `json:"has_cycle"`
	NotYourTurn bool               `json:"not_your_turn,omitempty"`
}

// Resolve maps a chore, its per-assignee records and now to the visible state
// of userID. It reads nothing else and writes nothing, so identical inputs
// always give identical output.
//
// Completion facts are evaluated before temporal ones: an approval recorded in
// the same instant the due window closes still reads as approved.
func Resolve(c model.Chore, records []model.AssigneeRecord, userID string, now time.Time) Resolution {
	res := Resolution{UserID: userID, State: model.StatePending}
	if !c.IsAssigned(userID) {
		return res
	}

	cyc, ok := CycleAt(c, userID, now)
	if !ok {
		return res
	}
	res.Cycle, res.HasCycle = cyc, true

	facts := currentFacts(c, records, userID, now)
	own := facts[userID]

	switch c.Criteria {
	case model.CriteriaShared, model.CriteriaSharedFirst:
		if winner := firstApprover(c, facts); winner != "" {
			if winner == userID {
				res.State = model.StateApproved
			} else {
				res.State = model.StateCompletedByOther
			}
			return res
		}
	case model.CriteriaSharedAll:
		if allApproved(c, facts) {
			res.State = model.StateCompleted
			return res
		}
		if approved(own) {
			res.State = model.StateApprovedInPart
			return res
		}
	case model.CriteriaRotation:
		if TurnHolder(c, cyc.ID) != userID {
			res.NotYourTurn = true
			return res
		}
		if approved(own) {
			res.State = model.StateApproved
			return res
		}
	default:
		if approved(own) {
			res.State = model.StateApproved
			return res
		}
	}

	res.State = temporalState(c.Schedule, cyc, own, now)
	return res
}

// ResolveAll resolves every assignee in assignee order.
func ResolveAll(c model.Chore, records []model.AssigneeRecord, now time.Time) []Resolution {
	out := make([]Resolution, 0, len(c.Assignees))
	for _, uid := range c.Assignees {
		out = append(out, Resolve(c, records, uid, now))
	}
	return out
}

// CycleComplete reports whether userID's current cycle has reached its
// terminal completed condition for the chore's completion criteria.
func CycleComplete(c model.Chore, records []model.AssigneeRecord, userID string, now time.Time) bool {
	facts := currentFacts(c, records, userID, now)
	switch c.Criteria {
	case model.CriteriaShared, model.CriteriaSharedFirst:
		return firstApprover(c, facts) != ""
	case model.CriteriaSharedAll:
		return allApproved(c, facts)
	default:
		return approved(facts[userID])
	}
}

// FirstClaimant returns the assignee whose claim in the current cycle came
// first, or "" when nobody has claimed.
func FirstClaimant(c model.Chore, records []model.AssigneeRecord, now time.Time) string {
	var first string
	var firstAt time.Time
	for _, uid := range c.Assignees {
		rec := currentFacts(c, records, uid, now)[uid]
		if rec == nil || rec.ClaimedAt == nil || rec.ApprovedAt != nil {
			continue
		}
		if first == "" || rec.ClaimedAt.Before(firstAt) {
			first, firstAt = uid, *rec.ClaimedAt
		}
	}
	return first
}

// Applies reports whether rec's cycle-scoped facts describe cycleID. Under the
// manual reset policy facts carry across cycles until explicitly reset.
func Applies(c model.Chore, rec model.AssigneeRecord, cycleID string) bool {
	if rec.Cycle == "" {
		return false
	}
	return rec.Cycle == cycleID || c.ResetPolicy == model.ResetManual
}

func temporalState(s model.Schedule, cyc Cycle, own *model.AssigneeRecord, now time.Time) model.VisibleState {
	if own != nil && own.Missed {
		return model.StateMissed
	}

	claimed := own != nil && own.ClaimedAt != nil
	if !excused(cyc, own) {
		if s.Grace > 0 && now.After(cyc.Due.Add(s.Grace)) {
			return model.StateMissed
		}
		if now.After(cyc.Due) {
			return model.StateOverdue
		}
	}
	if claimed {
		return model.StateClaimed
	}
	if now.After(cyc.Due) {
		return model.StatePending
	}
	if !now.Before(cyc.Due.Add(-s.SoonWindow())) {
		return model.StateDue
	}
	return model.StatePending
}

// excused reports whether escalation is off for the rest of cyc: the cycle was
// completed and then reset by the upon_completion cascade, or a reset was
// recorded once the cycle was already due. An earlier reset only clears facts.
func excused(cyc Cycle, own *model.AssigneeRecord) bool {
	if own == nil || own.Cycle != cyc.ID {
		return false
	}
	if own.Fulfilled {
		return true
	}
	return own.ResetAt != nil && !own.ResetAt.Before(cyc.Due)
}

// currentFacts indexes the records whose facts apply to the cycle userID is
// in. Shared criteria share one cycle, so the index covers peers too.
func currentFacts(c model.Chore, records []model.AssigneeRecord, userID string, now time.Time) map[string]*model.AssigneeRecord {
	cyc, ok := CycleAt(c, userID, now)
	facts := make(map[string]*model.AssigneeRecord, len(records))
	if !ok {
		return facts
	}
	for i := range records {
		rec := &records[i]
		if rec.ChoreID != c.ID || !c.IsAssigned(rec.UserID) {
			continue
		}
		if c.Criteria == model.CriteriaIndependent && rec.UserID != userID {
			// Independent peers may sit in a different cycle; they never
			// influence userID anyway.
			continue
		}
		if Applies(c, *rec, cyc.ID) {
			facts[rec.UserID] = rec
		}
	}
	return facts
}

func approved(rec *model.AssigneeRecord) bool {
	return rec != nil && rec.ApprovedAt != nil
}

func firstApprover(c model.Chore, facts map[string]*model.AssigneeRecord) string {
	var first string
	var firstAt time.Time
	for _, uid := range c.Assignees {
		rec := facts[uid]
		if !approved(rec) {
			continue
		}
		if first == "" || rec.ApprovedAt.Before(firstAt) {
			first, firstAt = uid, *rec.ApprovedAt
		}
	}
	return first
}

func allApproved(c model.Chore, facts map[string]*model.AssigneeRecord) bool {
	if len(c.Assignees) == 0 {
		return false
	}
	for _, uid := range c.Assignees {
		if !approved(facts[uid]) {
			return false
		}
	}
	return true
}
