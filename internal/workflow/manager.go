// Package workflow applies chore operations: it authorizes the actor, checks
// the transition against the resolved state, mutates the per-assignee
// records, persists them and emits one signal per transition.
//
// The manager does not serialize callers. Everything that mutates a chore
// must hold the chore's key in a shared Locker.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorekeeper/internal/authz"
	"github.com/dukerupert/chorekeeper/internal/chore"
	"github.com/dukerupert/chorekeeper/internal/clock"
	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/signal"
	"github.com/dukerupert/chorekeeper/internal/store"
)

type Deps struct {
	Chores  *store.ChoreStore
	Users   *store.UserStore
	Sent    *store.SignalLogStore
	Authz   *authz.Resolver
	Emitter signal.Emitter
	Clock   clock.Clock
	Logger  *slog.Logger
}

type Manager struct {
	chores  *store.ChoreStore
	users   *store.UserStore
	sent    *store.SignalLogStore
	authz   *authz.Resolver
	emitter signal.Emitter
	clock   clock.Clock
	logger  *slog.Logger
}

func NewManager(d Deps) *Manager {
	m := &Manager{
		chores:  d.Chores,
		users:   d.Users,
		sent:    d.Sent,
		authz:   d.Authz,
		emitter: d.Emitter,
		clock:   d.Clock,
		logger:  d.Logger,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.emitter == nil {
		m.emitter = signal.NewLogger(m.logger)
	}
	if m.authz == nil {
		m.authz = authz.NewResolver(nil, m.logger)
	}
	return m
}

// Outcome is a chore after an operation settled: every assignee's resolved
// state and the signals emitted, in transition order.
type Outcome struct {
	Chore   model.Chore        `json:"chore"`
	States  []chore.Resolution `json:"states"`
	Signals []signal.Signal    `json:"signals,omitempty"`
}

// State returns the settled state of userID.
func (o *Outcome) State(userID string) model.VisibleState {
	for _, r := range o.States {
		if r.UserID == userID {
			return r.State
		}
	}
	return ""
}

// Claim records actorID's claim on the current cycle.
func (m *Manager) Claim(ctx context.Context, actorID, choreID, cycle string) (*Outcome, error) {
	o, err := m.load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	actor, err := m.actor(ctx, choreID, actorID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, actor, authz.ActionClaim, &o.chore); err != nil {
		return nil, err
	}
	cyc, err := o.cycle(actorID, cycle)
	if err != nil {
		return nil, err
	}

	cur := chore.Resolve(o.chore, o.records, actorID, o.now)
	if err := o.refuseTerminal(cur); err != nil {
		return nil, err
	}
	if cur.State == model.StateClaimed {
		return nil, invalid(choreID, actorID, AlreadyClaimed)
	}
	if f := o.facts(actorID, cyc.ID); f != nil && f.ClaimedAt != nil {
		// Late claims read overdue but are still claims.
		return nil, invalid(choreID, actorID, AlreadyClaimed)
	}
	if o.chore.Criteria == model.CriteriaSharedFirst {
		if first := chore.FirstClaimant(o.chore, o.records, o.now); first != "" && first != actorID {
			return nil, invalid(choreID, actorID, AlreadyClaimedByOther)
		}
	}

	rec := o.record(actorID)
	o.enter(rec, cyc.ID)
	rec.ClaimedAt = timePtr(o.now)
	rec.LastClaimedAt = timePtr(o.now)

	return m.commit(ctx, o, actorID, transition{signal.ChoreClaimed, actorID, cyc.ID})
}

// Approve approves assigneeID's outstanding claim. Completing the cycle
// records completions, advances a rotation and, under the upon_completion
// policy, resets the finished assignees before anything is persisted.
func (m *Manager) Approve(ctx context.Context, actorID, choreID, assigneeID, cycle string) (*Outcome, error) {
	o, cyc, err := m.prepareReview(ctx, actorID, choreID, assigneeID, cycle)
	if err != nil {
		return nil, err
	}
	if o.chore.Criteria == model.CriteriaSharedFirst {
		if first := chore.FirstClaimant(o.chore, o.records, o.now); first != assigneeID {
			return nil, invalid(choreID, assigneeID, AlreadyClaimedByOther)
		}
	}

	rec := o.record(assigneeID)
	o.enter(rec, cyc.ID)
	rec.ApprovedAt = timePtr(o.now)
	rec.ApprovedBy = actorID
	rec.LastApprovedAt = timePtr(o.now)

	ts := []transition{{signal.ChoreApproved, assigneeID, cyc.ID}}
	if !chore.CycleComplete(o.chore, o.records, assigneeID, o.now) {
		return m.commit(ctx, o, actorID, ts...)
	}

	for _, uid := range o.completers(assigneeID) {
		o.record(uid).LastCompletedAt = timePtr(o.now)
		ts = append(ts, transition{signal.ChoreCompleted, uid, cyc.ID})
	}

	var next string
	if o.chore.Criteria == model.CriteriaRotation {
		n := len(o.chore.Assignees)
		o.chore.RotationIndex = (indexOf(o.chore.Assignees, assigneeID) + 1) % n
		o.chore.RotationCycle = cyc.ID
		next = o.chore.Assignees[o.chore.RotationIndex]
	}

	if o.chore.ResetPolicy == model.ResetUponCompletion {
		targets := o.completers(assigneeID)
		if next != "" && next != assigneeID {
			targets = append(targets, next)
		}
		if o.chore.Criteria.IsShared() {
			targets = o.chore.Assignees
		}
		o.chore.RotationCycle = ""
		for _, uid := range targets {
			if id, ok := o.reset(uid, true); ok {
				ts = append(ts, transition{signal.ChoreReset, uid, id})
			}
		}
	}

	return m.commit(ctx, o, actorID, ts...)
}

// Disapprove withdraws assigneeID's outstanding claim.
func (m *Manager) Disapprove(ctx context.Context, actorID, choreID, assigneeID, cycle string) (*Outcome, error) {
	o, cyc, err := m.prepareReview(ctx, actorID, choreID, assigneeID, cycle)
	if err != nil {
		return nil, err
	}

	rec := o.record(assigneeID)
	o.enter(rec, cyc.ID)
	rec.ClaimedAt = nil

	return m.commit(ctx, o, actorID, transition{signal.ChoreDisapproved, assigneeID, cyc.ID})
}

func (m *Manager) prepareReview(ctx context.Context, actorID, choreID, assigneeID, cycle string) (*op, chore.Cycle, error) {
	o, err := m.load(ctx, choreID)
	if err != nil {
		return nil, chore.Cycle{}, err
	}
	actor, err := m.actor(ctx, choreID, actorID)
	if err != nil {
		return nil, chore.Cycle{}, err
	}
	if err := m.authorize(ctx, actor, authz.ActionApprove, &o.chore); err != nil {
		return nil, chore.Cycle{}, err
	}
	if !o.chore.IsAssigned(assigneeID) {
		return nil, chore.Cycle{}, invalid(choreID, assigneeID, NotAssigned)
	}
	cyc, err := o.cycle(assigneeID, cycle)
	if err != nil {
		return nil, chore.Cycle{}, err
	}

	cur := chore.Resolve(o.chore, o.records, assigneeID, o.now)
	if err := o.refuseTerminal(cur); err != nil {
		return nil, chore.Cycle{}, err
	}
	if f := o.facts(assigneeID, cyc.ID); f == nil || f.ClaimedAt == nil {
		return nil, chore.Cycle{}, invalid(choreID, assigneeID, NotClaimed)
	}
	return o, cyc, nil
}

// Reset clears the current cycle's facts of assigneeID, or of every assignee
// when assigneeID is empty. A reset made once the cycle is due stops further
// escalation in that cycle; an earlier one escalates at due as usual.
func (m *Manager) Reset(ctx context.Context, actorID, choreID, assigneeID, cycle string) (*Outcome, error) {
	o, err := m.load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	actor, err := m.actor(ctx, choreID, actorID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, actor, authz.ActionManage, &o.chore); err != nil {
		return nil, err
	}

	targets := o.chore.Assignees
	if assigneeID != "" {
		if !o.chore.IsAssigned(assigneeID) {
			return nil, invalid(choreID, assigneeID, NotAssigned)
		}
		targets = []string{assigneeID}
	}
	for _, uid := range targets {
		if _, err := o.cycle(uid, cycle); err != nil {
			return nil, err
		}
	}

	o.chore.RotationCycle = ""
	var ts []transition
	for _, uid := range targets {
		if id, ok := o.reset(uid, false); ok {
			ts = append(ts, transition{signal.ChoreReset, uid, id})
		}
	}
	return m.commit(ctx, o, actorID, ts...)
}

// RecordScanResult acts on one scanner verdict. Due-soon reminders go out
// once per cycle; crossing the due or grace threshold is persisted and
// signalled only on the transition.
func (m *Manager) RecordScanResult(ctx context.Context, r chore.ScanResult) error {
	switch r.Class {
	case chore.ClassDueSoon:
		return m.dueSoon(ctx, r)
	case chore.ClassOverdueCrossed:
		return m.escalate(ctx, r)
	}
	return nil
}

func (m *Manager) dueSoon(ctx context.Context, r chore.ScanResult) error {
	o, cur, ok, err := m.current(ctx, r)
	if err != nil || !ok {
		return err
	}
	if cur.State != model.StateDue {
		return nil
	}

	sent, err := m.sent.WasSent(ctx, string(signal.ChoreDueSoon), r.ChoreID, r.UserID, cur.Cycle.ID)
	if err != nil {
		return err
	}
	if sent {
		return nil
	}

	sig := signal.Signal{
		Kind:    signal.ChoreDueSoon,
		ChoreID: r.ChoreID,
		UserID:  r.UserID,
		Cycle:   cur.Cycle.ID,
		At:      o.now,
		Payload: map[string]any{
			"state":  string(cur.State),
			"due":    cur.Cycle.Due,
			"points": o.chore.Points,
		},
	}
	m.emit(ctx, sig)
	return m.sent.RecordSent(ctx, string(signal.ChoreDueSoon), r.ChoreID, r.UserID, cur.Cycle.ID)
}

func (m *Manager) escalate(ctx context.Context, r chore.ScanResult) error {
	o, cur, ok, err := m.current(ctx, r)
	if err != nil || !ok {
		return err
	}

	id := cur.Cycle.ID
	f := o.facts(r.UserID, id)
	rec := o.record(r.UserID)
	var kind signal.Kind
	switch cur.State {
	case model.StateOverdue:
		if f != nil && f.OverdueSince != nil {
			return nil
		}
		o.enter(rec, id)
		rec.OverdueSince = timePtr(o.now)
		kind = signal.ChoreOverdue
	case model.StateMissed:
		if f != nil && f.Missed {
			return nil
		}
		o.enter(rec, id)
		rec.Missed = true
		rec.MissedCount++
		if rec.OverdueSince == nil {
			rec.OverdueSince = timePtr(o.now)
		}
		kind = signal.ChoreMissed
	default:
		return nil
	}

	_, err = m.commit(ctx, o, "", transition{kind, r.UserID, id})
	return err
}

// current reloads the chore and re-resolves the scanned assignee. ok is false
// when the verdict no longer describes the assignee's open cycle.
func (m *Manager) current(ctx context.Context, r chore.ScanResult) (*op, chore.Resolution, bool, error) {
	o, err := m.load(ctx, r.ChoreID)
	if err != nil {
		return nil, chore.Resolution{}, false, err
	}
	cur := chore.Resolve(o.chore, o.records, r.UserID, o.now)
	if !cur.HasCycle || cur.NotYourTurn || cur.Cycle.ID != r.Cycle.ID {
		return o, cur, false, nil
	}
	return o, cur, true, nil
}

// Status resolves every assignee of the chore without changing anything.
func (m *Manager) Status(ctx context.Context, choreID string) (*Outcome, error) {
	o, err := m.load(ctx, choreID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Chore: o.chore, States: chore.ResolveAll(o.chore, o.records, o.now)}, nil
}

// Board resolves every chore.
func (m *Manager) Board(ctx context.Context) ([]Outcome, error) {
	chores, err := m.chores.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	out := make([]Outcome, 0, len(chores))
	for _, c := range chores {
		records, err := m.chores.ListRecords(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Outcome{Chore: c, States: chore.ResolveAll(c, records, now)})
	}
	return out, nil
}

type transition struct {
	kind   signal.Kind
	userID string
	cycle  string
}

// commit settles every assignee, persists the chore and its records in one
// transaction and then emits the transitions in order.
func (m *Manager) commit(ctx context.Context, o *op, actorID string, ts ...transition) (*Outcome, error) {
	states := chore.ResolveAll(o.chore, o.records, o.now)
	byUser := make(map[string]model.VisibleState, len(states))
	for _, r := range states {
		byUser[r.UserID] = r.State
	}
	for i := range o.records {
		if s, ok := byUser[o.records[i].UserID]; ok {
			o.records[i].State = s
		}
	}

	if err := m.chores.SaveCycle(ctx, o.chore, o.records); err != nil {
		return nil, err
	}

	out := &Outcome{Chore: o.chore, States: states}
	for _, t := range ts {
		payload := map[string]any{
			"state":  string(byUser[t.userID]),
			"points": o.chore.Points,
		}
		if actorID != "" {
			payload["actor"] = actorID
		}
		out.Signals = append(out.Signals, signal.Signal{
			Kind:    t.kind,
			ChoreID: o.chore.ID,
			UserID:  t.userID,
			Cycle:   t.cycle,
			Payload: payload,
			At:      o.now,
		})
	}
	m.emit(ctx, out.Signals...)
	return out, nil
}

// emit delivers signals in order. Delivery failures never undo a persisted
// transition.
func (m *Manager) emit(ctx context.Context, sigs ...signal.Signal) {
	for _, sig := range sigs {
		if err := m.emitter.Emit(ctx, sig); err != nil {
			m.logger.Error("emit signal", "kind", sig.Kind, "chore_id", sig.ChoreID, "user_id", sig.UserID, "error", err)
		}
	}
}

func (m *Manager) load(ctx context.Context, choreID string) (*op, error) {
	c, err := m.chores.GetByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("chore %s: %w", choreID, ErrNotFound)
	}
	records, err := m.chores.ListRecords(ctx, choreID)
	if err != nil {
		return nil, err
	}
	o := &op{chore: *c, records: records, now: m.clock.Now()}
	for _, uid := range c.Assignees {
		o.record(uid)
	}
	return o, nil
}

func (m *Manager) actor(ctx context.Context, choreID, actorID string) (model.User, error) {
	u, err := m.users.GetByID(ctx, actorID)
	if err != nil {
		return model.User{}, err
	}
	if u == nil {
		return model.User{}, unauthorized(choreID, actorID, "unknown user")
	}
	return *u, nil
}

func (m *Manager) authorize(ctx context.Context, actor model.User, action authz.Action, c *model.Chore) error {
	d := m.authz.Authorize(ctx, actor, action, authz.Target{Chore: c})
	if d.Allowed {
		return nil
	}
	choreID := ""
	if c != nil {
		choreID = c.ID
	}
	return unauthorized(choreID, actor.ID, d.Reason)
}

// op is the working copy of one chore during an operation.
type op struct {
	chore   model.Chore
	records []model.AssigneeRecord
	now     time.Time
}

// record returns userID's record, adding an empty one when missing. load
// creates every assignee's record up front so returned pointers stay valid.
func (o *op) record(userID string) *model.AssigneeRecord {
	for i := range o.records {
		if o.records[i].UserID == userID {
			return &o.records[i]
		}
	}
	o.records = append(o.records, model.AssigneeRecord{
		ChoreID: o.chore.ID,
		UserID:  userID,
		State:   model.StatePending,
	})
	return &o.records[len(o.records)-1]
}

// facts returns userID's record when its facts apply to cycleID.
func (o *op) facts(userID, cycleID string) *model.AssigneeRecord {
	rec := o.record(userID)
	if !chore.Applies(o.chore, *rec, cycleID) {
		return nil
	}
	return rec
}

// enter moves rec into cycleID, dropping facts that belong to another cycle.
func (o *op) enter(rec *model.AssigneeRecord, cycleID string) {
	if !chore.Applies(o.chore, *rec, cycleID) {
		rec.ClearCycle()
	} else if rec.Cycle != cycleID {
		rec.ResetAt = nil
		rec.Fulfilled = false
	}
	rec.Cycle = cycleID
}

// reset clears userID's cycle facts and marks the open cycle as restarted.
// fulfilled records that the cycle was completed before it reopened.
func (o *op) reset(userID string, fulfilled bool) (string, bool) {
	rec := o.record(userID)
	rec.ClearCycle()
	cyc, ok := chore.CycleAt(o.chore, userID, o.now)
	if !ok {
		return "", false
	}
	rec.Cycle = cyc.ID
	rec.ResetAt = timePtr(o.now)
	rec.Fulfilled = fulfilled
	return cyc.ID, true
}

// cycle returns userID's open cycle, checking it against the requested id.
func (o *op) cycle(userID, requested string) (chore.Cycle, error) {
	cyc, ok := chore.CycleAt(o.chore, userID, o.now)
	if !ok {
		return chore.Cycle{}, invalid(o.chore.ID, userID, NoOpenCycle)
	}
	if requested != "" && requested != cyc.ID {
		return chore.Cycle{}, invalid(o.chore.ID, userID, StaleCycle)
	}
	return cyc, nil
}

func (o *op) refuseTerminal(cur chore.Resolution) error {
	if cur.NotYourTurn {
		return invalid(o.chore.ID, cur.UserID, NotYourTurn)
	}
	switch cur.State {
	case model.StateApproved, model.StateApprovedInPart:
		return invalid(o.chore.ID, cur.UserID, AlreadyApproved)
	case model.StateCompleted, model.StateCompletedByOther:
		return invalid(o.chore.ID, cur.UserID, CycleCompleted)
	case model.StateMissed:
		return invalid(o.chore.ID, cur.UserID, CycleMissed)
	}
	return nil
}

// completers lists who completed the cycle when assigneeID's approval
// finished it.
func (o *op) completers(assigneeID string) []string {
	if o.chore.Criteria == model.CriteriaSharedAll {
		return append([]string(nil), o.chore.Assignees...)
	}
	return []string{assigneeID}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func timePtr(t time.Time) *time.Time {
	return &t
}
