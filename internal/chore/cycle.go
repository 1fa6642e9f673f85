package chore

import (
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/recurrence"
)

// OnceCycleID identifies the only cycle of a one-off chore.
const OnceCycleID = "once"

const cycleIDLayout = "2006-01-02"

// Cycle is one recurrence instance of a chore's schedule.
type Cycle struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	Due   time.Time `json:"due"`
	Next  time.Time `json:"next,omitempty"`
}

// CycleAt returns the cycle in effect for userID at now. The second result is
// false before the schedule's first cycle opens.
//
// Cycles open at the start of the occurrence's day and fall due DueWithin
// later. Independent chores honour per-assignee due overrides; every other
// criteria shares one due timestamp across assignees.
func CycleAt(c model.Chore, userID string, now time.Time) (Cycle, bool) {
	cyc, ok := baseCycle(c, now)
	if !ok {
		return Cycle{}, false
	}
	if c.Criteria == model.CriteriaIndependent {
		if due, ok := c.Schedule.DueOverrides[userID]; ok && !due.IsZero() {
			cyc.Due = due
		}
	}
	return cyc, true
}

// An unparsable rule degrades to a one-off chore. Rules are validated when
// chores are saved, so this only guards rows written by older builds.
func baseCycle(c model.Chore, now time.Time) (Cycle, bool) {
	s := c.Schedule
	local := now.In(s.Start.Location())

	if s.Rule == "" {
		return oneOff(s, local)
	}
	rule, err := recurrence.Parse(s.Rule)
	if err != nil {
		return oneOff(s, local)
	}

	start, next, ok := recurrence.Window(rule, s.Start, local)
	if !ok {
		return Cycle{}, false
	}
	day := recurrence.StartOfDay(start)
	cyc := Cycle{
		ID:    day.Format(cycleIDLayout),
		Start: day,
		Due:   day.Add(s.DueOffset()),
	}
	if !next.IsZero() {
		cyc.Next = recurrence.StartOfDay(next)
	}
	return cyc, true
}

func oneOff(s model.Schedule, now time.Time) (Cycle, bool) {
	day := recurrence.StartOfDay(s.Start)
	if now.Before(day) {
		return Cycle{}, false
	}
	return Cycle{
		ID:    OnceCycleID,
		Start: day,
		Due:   day.Add(s.DueOffset()),
	}, true
}

// TurnHolder returns the assignee eligible in cycleID of a rotation chore.
// RotationIndex points at the next turn; inside the cycle recorded in
// RotationCycle the previous holder still owns the turn.
func TurnHolder(c model.Chore, cycleID string) string {
	n := len(c.Assignees)
	if n == 0 {
		return ""
	}
	idx := c.RotationIndex
	if c.RotationCycle != "" && c.RotationCycle == cycleID {
		idx--
	}
	idx = ((idx % n) + n) % n
	return c.Assignees[idx]
}

// ValidateSchedule reports whether the schedule's rule parses.
func ValidateSchedule(s model.Schedule) error {
	if s.Rule == "" {
		return nil
	}
	_, err := recurrence.Parse(s.Rule)
	return err
}
