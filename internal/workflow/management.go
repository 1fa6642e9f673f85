package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/chorekeeper/internal/authz"
	"github.com/dukerupert/chorekeeper/internal/chore"
	"github.com/dukerupert/chorekeeper/internal/model"
)

// CreateChore validates c and stores it under a new id.
func (m *Manager) CreateChore(ctx context.Context, actorID string, c model.Chore) (*model.Chore, error) {
	if err := m.requireManage(ctx, actorID, &c); err != nil {
		return nil, err
	}
	if c.Schedule.Start.IsZero() {
		c.Schedule.Start = m.clock.Now()
	}
	if err := validateChore(&c); err != nil {
		return nil, err
	}
	if err := m.checkAssignable(ctx, c.Assignees, c.Schedule.DueOverrides); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate chore id: %w", err)
	}
	c.ID = id.String()
	c.RotationIndex, c.RotationCycle = 0, ""

	created, err := m.chores.Create(ctx, &c)
	if err != nil {
		return nil, err
	}
	m.logger.Info("chore created", "chore_id", created.ID, "criteria", created.Criteria, "actor", actorID)
	return created, nil
}

// UpdateChore rewrites a chore's definition. Assignees, records and rotation
// bookkeeping are kept.
func (m *Manager) UpdateChore(ctx context.Context, actorID string, c model.Chore) (*model.Chore, error) {
	existing, err := m.chores.GetByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("chore %s: %w", c.ID, ErrNotFound)
	}
	if err := m.requireManage(ctx, actorID, existing); err != nil {
		return nil, err
	}
	if c.Schedule.Start.IsZero() {
		c.Schedule.Start = existing.Schedule.Start
	}
	c.Assignees = existing.Assignees
	c.Schedule.DueOverrides = existing.Schedule.DueOverrides
	if err := validateChore(&c); err != nil {
		return nil, err
	}
	return m.chores.Update(ctx, &c)
}

func (m *Manager) DeleteChore(ctx context.Context, actorID, choreID string) error {
	existing, err := m.chores.GetByID(ctx, choreID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("chore %s: %w", choreID, ErrNotFound)
	}
	if err := m.requireManage(ctx, actorID, existing); err != nil {
		return err
	}
	return m.chores.Delete(ctx, choreID)
}

// SetAssignees replaces the chore's ordered assignee list. Every user must
// exist and hold can_be_assigned. Records of dropped assignees go with them.
func (m *Manager) SetAssignees(ctx context.Context, actorID, choreID string, userIDs []string, overrides map[string]time.Time) (*model.Chore, error) {
	existing, err := m.chores.GetByID(ctx, choreID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("chore %s: %w", choreID, ErrNotFound)
	}
	if err := m.requireManage(ctx, actorID, existing); err != nil {
		return nil, err
	}
	if existing.Criteria == model.CriteriaRotation && len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: rotation chores need at least one assignee", ErrInvalid)
	}
	if err := m.checkAssignable(ctx, userIDs, overrides); err != nil {
		return nil, err
	}

	if err := m.chores.SetAssignees(ctx, choreID, userIDs, overrides); err != nil {
		return nil, err
	}
	m.logger.Info("assignees set", "chore_id", choreID, "count", len(userIDs), "actor", actorID)
	return m.chores.GetByID(ctx, choreID)
}

// CreateUser stores a new user under a new id.
func (m *Manager) CreateUser(ctx context.Context, actorID string, u model.User) (*model.User, error) {
	if err := m.requireManage(ctx, actorID, nil); err != nil {
		return nil, err
	}
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.DisplayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalid)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}
	u.ID = id.String()
	return m.users.Create(ctx, &u)
}

// UpdateCapabilities replaces userID's capability flags. Existing
// assignments are not revisited.
func (m *Manager) UpdateCapabilities(ctx context.Context, actorID, userID string, caps model.Capabilities) (*model.User, error) {
	if err := m.requireManage(ctx, actorID, nil); err != nil {
		return nil, err
	}
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	updated, err := m.users.UpdateCapabilities(ctx, userID, caps)
	if err != nil {
		return nil, err
	}
	m.logger.Info("capabilities updated", "user_id", userID, "actor", actorID,
		"can_be_assigned", caps.CanBeAssigned, "can_approve", caps.CanApprove, "can_manage", caps.CanManage)
	return updated, nil
}

// RemoveUser deletes userID together with its assignments and records.
func (m *Manager) RemoveUser(ctx context.Context, actorID, userID string) error {
	if err := m.requireManage(ctx, actorID, nil); err != nil {
		return err
	}
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err := m.users.Delete(ctx, userID); err != nil {
		return err
	}
	m.logger.Info("user removed", "user_id", userID, "actor", actorID)
	return nil
}

// LockUserChores holds l for every chore userID is assigned to. Operations
// that change the user itself take it so no chore transition for the user is
// in flight. The assignment list is re-read under the locks and the set is
// retaken if an assignment appeared meanwhile.
func (m *Manager) LockUserChores(ctx context.Context, l *Locker, userID string) (unlock func(), err error) {
	ids, err := m.chores.ChoreIDsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	for {
		release := l.LockAll(ids...)
		held, err := m.chores.ChoreIDsFor(ctx, userID)
		if err != nil {
			release()
			return nil, err
		}
		if subset(held, ids) {
			return release, nil
		}
		release()
		ids = append(ids, held...)
	}
}

func subset(ids, of []string) bool {
	for _, id := range ids {
		if !slices.Contains(of, id) {
			return false
		}
	}
	return true
}

func (m *Manager) requireManage(ctx context.Context, actorID string, c *model.Chore) error {
	choreID := ""
	if c != nil {
		choreID = c.ID
	}
	actor, err := m.actor(ctx, choreID, actorID)
	if err != nil {
		return err
	}
	return m.authorize(ctx, actor, authz.ActionManage, c)
}

func (m *Manager) checkAssignable(ctx context.Context, userIDs []string, overrides map[string]time.Time) error {
	seen := make(map[string]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			return fmt.Errorf("%w: user %s assigned twice", ErrInvalid, uid)
		}
		seen[uid] = true

		u, err := m.users.GetByID(ctx, uid)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %s: %w", uid, ErrNotFound)
		}
		if !u.CanBeAssigned {
			return fmt.Errorf("%w: user %s cannot be assigned chores", ErrInvalid, uid)
		}
	}
	for uid := range overrides {
		if !seen[uid] {
			return fmt.Errorf("%w: due override for unassigned user %s", ErrInvalid, uid)
		}
	}
	return nil
}

// validateChore fills defaults and rejects malformed definitions.
func validateChore(c *model.Chore) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if c.Points < 0 {
		return fmt.Errorf("%w: points must not be negative", ErrInvalid)
	}
	if c.Criteria == "" {
		c.Criteria = model.CriteriaIndependent
	}
	if !c.Criteria.Valid() {
		return fmt.Errorf("%w: unknown completion criteria %q", ErrInvalid, c.Criteria)
	}
	if c.ResetPolicy == "" {
		c.ResetPolicy = model.ResetScheduled
	}
	if !c.ResetPolicy.Valid() {
		return fmt.Errorf("%w: unknown reset policy %q", ErrInvalid, c.ResetPolicy)
	}
	if c.Criteria == model.CriteriaRotation && len(c.Assignees) == 0 {
		return fmt.Errorf("%w: rotation chores need at least one assignee", ErrInvalid)
	}
	s := c.Schedule
	if s.DueWithin < 0 || s.DueSoon < 0 || s.Grace < 0 {
		return fmt.Errorf("%w: schedule durations must not be negative", ErrInvalid)
	}
	if err := chore.ValidateSchedule(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
