package chore

import (
	"testing"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

var anchor = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func daily(criteria model.CompletionCriteria, assignees ...string) model.Chore {
	return model.Chore{
		ID:          "c1",
		Name:        "Wash dishes",
		Criteria:    criteria,
		Assignees:   assignees,
		ResetPolicy: model.ResetScheduled,
		Schedule: model.Schedule{
			Rule:      "FREQ=DAILY",
			Start:     anchor,
			DueWithin: 18 * time.Hour,
		},
	}
}

func ts(day, hour int) time.Time {
	return time.Date(2026, 2, day, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func claimed(user, cycle string, at time.Time) model.AssigneeRecord {
	return model.AssigneeRecord{ChoreID: "c1", UserID: user, Cycle: cycle, ClaimedAt: ptr(at)}
}

func approvedRec(user, cycle string, at time.Time) model.AssigneeRecord {
	r := claimed(user, cycle, at)
	r.ApprovedAt = ptr(at)
	r.ApprovedBy = "parent"
	return r
}

func TestCycleAtDaily(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")

	cyc, ok := CycleAt(c, "a", ts(5, 12))
	if !ok {
		t.Fatal("expected open cycle")
	}
	if cyc.ID != "2026-02-05" {
		t.Errorf("id = %q, want %q", cyc.ID, "2026-02-05")
	}
	if !cyc.Due.Equal(ts(5, 18)) {
		t.Errorf("due = %v, want %v", cyc.Due, ts(5, 18))
	}
	if !cyc.Next.Equal(ts(6, 0)) {
		t.Errorf("next = %v, want %v", cyc.Next, ts(6, 0))
	}
}

func TestCycleAtBeforeStart(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	if _, ok := CycleAt(c, "a", time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)); ok {
		t.Error("expected no cycle before the schedule starts")
	}
}

func TestCycleAtOneOff(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	c.Schedule.Rule = ""

	cyc, ok := CycleAt(c, "a", ts(20, 0))
	if !ok {
		t.Fatal("expected open cycle")
	}
	if cyc.ID != OnceCycleID {
		t.Errorf("id = %q, want %q", cyc.ID, OnceCycleID)
	}
	if !cyc.Due.Equal(ts(1, 18)) {
		t.Errorf("due = %v, want %v", cyc.Due, ts(1, 18))
	}
}

func TestCycleAtInvalidRuleFallsBackToOneOff(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	c.Schedule.Rule = "FREQ=HOURLY"

	cyc, ok := CycleAt(c, "a", ts(3, 0))
	if !ok || cyc.ID != OnceCycleID {
		t.Errorf("cycle = %+v, %v; want one-off", cyc, ok)
	}
}

func TestCycleAtDueOverride(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a", "b")
	c.Schedule.DueOverrides = map[string]time.Time{"b": ts(5, 20)}

	a, _ := CycleAt(c, "a", ts(5, 12))
	b, _ := CycleAt(c, "b", ts(5, 12))
	if !a.Due.Equal(ts(5, 18)) {
		t.Errorf("a due = %v, want %v", a.Due, ts(5, 18))
	}
	if !b.Due.Equal(ts(5, 20)) {
		t.Errorf("b due = %v, want %v", b.Due, ts(5, 20))
	}

	c.Criteria = model.CriteriaShared
	b, _ = CycleAt(c, "b", ts(5, 12))
	if !b.Due.Equal(ts(5, 18)) {
		t.Errorf("shared b due = %v, want override ignored", b.Due)
	}
}

func TestResolveTemporal(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	c.Schedule.Grace = 4 * time.Hour

	tests := []struct {
		name    string
		records []model.AssigneeRecord
		now     time.Time
		want    model.VisibleState
	}{
		{"pending", nil, ts(5, 10), model.StatePending},
		{"due soon boundary", nil, ts(5, 16), model.StateDue},
		{"at due", nil, ts(5, 18), model.StateDue},
		{"overdue", nil, ts(5, 19), model.StateOverdue},
		{"missed after grace", nil, ts(5, 23), model.StateMissed},
		{"claimed", []model.AssigneeRecord{claimed("a", "2026-02-05", ts(5, 9))}, ts(5, 10), model.StateClaimed},
		{"unapproved claim past due is overdue", []model.AssigneeRecord{claimed("a", "2026-02-05", ts(5, 17))}, ts(5, 19), model.StateOverdue},
		{"unapproved claim past grace is missed", []model.AssigneeRecord{claimed("a", "2026-02-05", ts(5, 17))}, ts(5, 23), model.StateMissed},
		{"reset before due still escalates", []model.AssigneeRecord{{ChoreID: "c1", UserID: "a", Cycle: "2026-02-05", ResetAt: ptr(ts(5, 10))}}, ts(5, 19), model.StateOverdue},
		{"reset after due stops escalation", []model.AssigneeRecord{{ChoreID: "c1", UserID: "a", Cycle: "2026-02-05", ResetAt: ptr(ts(5, 19))}}, ts(5, 23), model.StatePending},
		{"fulfilled cycle stops escalation", []model.AssigneeRecord{{ChoreID: "c1", UserID: "a", Cycle: "2026-02-05", ResetAt: ptr(ts(5, 10)), Fulfilled: true}}, ts(5, 23), model.StatePending},
		{"fulfilled record from older cycle", []model.AssigneeRecord{{ChoreID: "c1", UserID: "a", Cycle: "2026-02-04", ResetAt: ptr(ts(4, 10)), Fulfilled: true}}, ts(5, 19), model.StateOverdue},
		{"late claim still overdue", []model.AssigneeRecord{claimed("a", "2026-02-05", ts(5, 19))}, ts(5, 20), model.StateOverdue},
		{"stale claim ignored", []model.AssigneeRecord{claimed("a", "2026-02-04", ts(4, 9))}, ts(5, 10), model.StatePending},
		{"persisted missed", []model.AssigneeRecord{{ChoreID: "c1", UserID: "a", Cycle: "2026-02-05", Missed: true}}, ts(5, 10), model.StateMissed},
		{"approved beats overdue", []model.AssigneeRecord{approvedRec("a", "2026-02-05", ts(5, 9))}, ts(5, 23), model.StateApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(c, tt.records, "a", tt.now)
			if got.State != tt.want {
				t.Errorf("state = %q, want %q", got.State, tt.want)
			}
		})
	}
}

func TestResolveGraceZeroNeverMissed(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	got := Resolve(c, nil, "a", ts(5, 23))
	if got.State != model.StateOverdue {
		t.Errorf("state = %q, want %q", got.State, model.StateOverdue)
	}
}

func TestResolveUnassigned(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	got := Resolve(c, nil, "stranger", ts(5, 19))
	if got.State != model.StatePending || got.HasCycle {
		t.Errorf("resolution = %+v, want pending without cycle", got)
	}
}

func TestResolveIndependent(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a", "b")
	records := []model.AssigneeRecord{approvedRec("a", "2026-02-05", ts(5, 9))}

	if got := Resolve(c, records, "a", ts(5, 10)).State; got != model.StateApproved {
		t.Errorf("a = %q, want %q", got, model.StateApproved)
	}
	if got := Resolve(c, records, "b", ts(5, 10)).State; got != model.StatePending {
		t.Errorf("b = %q, want %q", got, model.StatePending)
	}
}

func TestResolveShared(t *testing.T) {
	for _, criteria := range []model.CompletionCriteria{model.CriteriaShared, model.CriteriaSharedFirst} {
		t.Run(string(criteria), func(t *testing.T) {
			c := daily(criteria, "a", "b", "c")
			records := []model.AssigneeRecord{approvedRec("b", "2026-02-05", ts(5, 9))}

			got := ResolveAll(c, records, ts(5, 19))
			want := []model.VisibleState{model.StateCompletedByOther, model.StateApproved, model.StateCompletedByOther}
			for i := range want {
				if got[i].State != want[i] {
					t.Errorf("%s = %q, want %q", got[i].UserID, got[i].State, want[i])
				}
			}
		})
	}
}

func TestResolveSharedAll(t *testing.T) {
	c := daily(model.CriteriaSharedAll, "a", "b")
	cycle := "2026-02-05"

	partial := []model.AssigneeRecord{approvedRec("a", cycle, ts(5, 9)), claimed("b", cycle, ts(5, 9))}
	got := ResolveAll(c, partial, ts(5, 10))
	if got[0].State != model.StateApprovedInPart {
		t.Errorf("a = %q, want %q", got[0].State, model.StateApprovedInPart)
	}
	if got[1].State != model.StateClaimed {
		t.Errorf("b = %q, want %q", got[1].State, model.StateClaimed)
	}
	if CycleComplete(c, partial, "a", ts(5, 10)) {
		t.Error("cycle should not be complete with one approval")
	}

	full := []model.AssigneeRecord{approvedRec("a", cycle, ts(5, 9)), approvedRec("b", cycle, ts(5, 10))}
	for _, r := range ResolveAll(c, full, ts(5, 11)) {
		if r.State != model.StateCompleted {
			t.Errorf("%s = %q, want %q", r.UserID, r.State, model.StateCompleted)
		}
	}
	if !CycleComplete(c, full, "a", ts(5, 11)) {
		t.Error("cycle should be complete once everyone is approved")
	}
}

func TestResolveRotation(t *testing.T) {
	c := daily(model.CriteriaRotation, "a", "b", "c")
	c.RotationIndex = 1

	got := ResolveAll(c, nil, ts(5, 10))
	for _, r := range got {
		wantTurn := r.UserID == "b"
		if r.NotYourTurn == wantTurn {
			t.Errorf("%s not_your_turn = %v", r.UserID, r.NotYourTurn)
		}
		if r.State != model.StatePending {
			t.Errorf("%s = %q, want pending", r.UserID, r.State)
		}
	}

	// b completed today's cycle; the index already points at c.
	c.RotationIndex = 2
	c.RotationCycle = "2026-02-05"
	records := []model.AssigneeRecord{approvedRec("b", "2026-02-05", ts(5, 9))}
	if got := Resolve(c, records, "b", ts(5, 10)).State; got != model.StateApproved {
		t.Errorf("b = %q, want %q", got, model.StateApproved)
	}
	if !Resolve(c, records, "c", ts(5, 10)).NotYourTurn {
		t.Error("c should wait for the next cycle")
	}
	if Resolve(c, records, "c", ts(6, 10)).NotYourTurn {
		t.Error("c should hold the turn in the next cycle")
	}
}

func TestTurnHolderFairness(t *testing.T) {
	c := daily(model.CriteriaRotation, "a", "b", "c")
	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		counts[TurnHolder(c, "")]++
		c.RotationIndex = (c.RotationIndex + 1) % len(c.Assignees)
	}
	for _, uid := range c.Assignees {
		if counts[uid] != 3 {
			t.Errorf("%s held %d turns, want 3", uid, counts[uid])
		}
	}
}

func TestResolveManualResetCarriesFacts(t *testing.T) {
	c := daily(model.CriteriaIndependent, "a")
	c.ResetPolicy = model.ResetManual
	records := []model.AssigneeRecord{approvedRec("a", "2026-02-03", ts(3, 9))}

	if got := Resolve(c, records, "a", ts(5, 10)).State; got != model.StateApproved {
		t.Errorf("state = %q, want %q", got, model.StateApproved)
	}
}

func TestResolveDeterministic(t *testing.T) {
	c := daily(model.CriteriaShared, "a", "b", "c")
	records := []model.AssigneeRecord{
		approvedRec("c", "2026-02-05", ts(5, 9)),
		approvedRec("a", "2026-02-05", ts(5, 9)),
	}
	first := ResolveAll(c, records, ts(5, 12))
	for i := 0; i < 20; i++ {
		again := ResolveAll(c, records, ts(5, 12))
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d: %+v != %+v", i, again[j], first[j])
			}
		}
	}
	// Equal approval times fall back to assignee order.
	if first[0].State != model.StateApproved {
		t.Errorf("a = %q, want %q", first[0].State, model.StateApproved)
	}
}

func TestFirstClaimant(t *testing.T) {
	c := daily(model.CriteriaSharedFirst, "a", "b")
	records := []model.AssigneeRecord{claimed("b", "2026-02-05", ts(5, 8)), claimed("a", "2026-02-05", ts(5, 9))}
	if got := FirstClaimant(c, records, ts(5, 10)); got != "b" {
		t.Errorf("first claimant = %q, want %q", got, "b")
	}
	if got := FirstClaimant(c, nil, ts(5, 10)); got != "" {
		t.Errorf("first claimant = %q, want empty", got)
	}
}
