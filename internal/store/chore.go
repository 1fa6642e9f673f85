package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

func scanChore(scanner interface{ Scan(...any) error }) (*model.Chore, error) {
	var c model.Chore
	var tz string
	var dueWithin, dueSoon, grace int64
	err := scanner.Scan(&c.ID, &c.Name, &c.Points, &c.Criteria, &c.ResetPolicy,
		&c.Schedule.Rule, &c.Schedule.Start, &tz, &dueWithin, &dueSoon, &grace,
		&c.RotationIndex, &c.RotationCycle, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		c.Schedule.Start = c.Schedule.Start.In(loc)
	}
	c.Schedule.DueWithin = time.Duration(dueWithin)
	c.Schedule.DueSoon = time.Duration(dueSoon)
	c.Schedule.Grace = time.Duration(grace)
	return &c, nil
}

const choreCols = `id, name, points, completion_criteria, reset_policy, recurrence_rule, schedule_start, schedule_tz,
	due_within, due_soon, grace, rotation_index, rotation_cycle, created_at, updated_at`

// Create inserts the chore, its assignee list and an empty record per
// assignee.
func (s *ChoreStore) Create(ctx context.Context, c *model.Chore) (*model.Chore, error) {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chores (`+choreCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Points, c.Criteria, c.ResetPolicy,
			c.Schedule.Rule, c.Schedule.Start.UTC(), c.Schedule.Start.Location().String(),
			int64(c.Schedule.DueWithin), int64(c.Schedule.DueSoon), int64(c.Schedule.Grace),
			c.RotationIndex, c.RotationCycle, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chore: %w", err)
		}
		return replaceAssignees(ctx, tx, c.ID, c.Assignees, c.Schedule.DueOverrides)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, c.ID)
}

// Update rewrites the chore's definition. Assignees and records are left alone.
func (s *ChoreStore) Update(ctx context.Context, c *model.Chore) (*model.Chore, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chores SET name = ?, points = ?, completion_criteria = ?, reset_policy = ?,
		 recurrence_rule = ?, schedule_start = ?, schedule_tz = ?, due_within = ?, due_soon = ?, grace = ?,
		 updated_at = ? WHERE id = ?`,
		c.Name, c.Points, c.Criteria, c.ResetPolicy,
		c.Schedule.Rule, c.Schedule.Start.UTC(), c.Schedule.Start.Location().String(),
		int64(c.Schedule.DueWithin), int64(c.Schedule.DueSoon), int64(c.Schedule.Grace),
		time.Now().UTC(), c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore: %w", err)
	}
	return s.GetByID(ctx, c.ID)
}

func (s *ChoreStore) GetByID(ctx context.Context, id string) (*model.Chore, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	if err := s.loadAssignees(ctx, []*model.Chore{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChoreStore) List(ctx context.Context) ([]model.Chore, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+choreCols+` FROM chores ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}

	var chores []*model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, c)
	}
	// The pool holds a single connection; release it before the next query.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}

	if err := s.loadAssignees(ctx, chores); err != nil {
		return nil, err
	}
	out := make([]model.Chore, len(chores))
	for i, c := range chores {
		out[i] = *c
	}
	return out, nil
}

func (s *ChoreStore) loadAssignees(ctx context.Context, chores []*model.Chore) error {
	if len(chores) == 0 {
		return nil
	}
	byID := make(map[string]*model.Chore, len(chores))
	for _, c := range chores {
		c.Assignees = []string{}
		byID[c.ID] = c
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chore_id, user_id, due_override FROM chore_assignees ORDER BY chore_id, position`)
	if err != nil {
		return fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var choreID, userID string
		var override sql.NullTime
		if err := rows.Scan(&choreID, &userID, &override); err != nil {
			return fmt.Errorf("scan assignee: %w", err)
		}
		c, ok := byID[choreID]
		if !ok {
			continue
		}
		c.Assignees = append(c.Assignees, userID)
		if override.Valid {
			if c.Schedule.DueOverrides == nil {
				c.Schedule.DueOverrides = make(map[string]time.Time)
			}
			c.Schedule.DueOverrides[userID] = override.Time
		}
	}
	return rows.Err()
}

// ChoreIDsFor lists the chores userID is assigned to.
func (s *ChoreStore) ChoreIDsFor(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chore_id FROM chore_assignees WHERE user_id = ? ORDER BY chore_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user chores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chore id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ChoreStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chores WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chore: %w", err)
	}
	return nil
}

// SetAssignees replaces the ordered assignee list. Records of removed users
// are dropped; new users get an empty record.
func (s *ChoreStore) SetAssignees(ctx context.Context, choreID string, userIDs []string, overrides map[string]time.Time) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return replaceAssignees(ctx, tx, choreID, userIDs, overrides)
	})
}

func replaceAssignees(ctx context.Context, tx *sql.Tx, choreID string, userIDs []string, overrides map[string]time.Time) error {
	keep := make(map[string]bool, len(userIDs))
	for _, uid := range userIDs {
		keep[uid] = true
	}

	rows, err := tx.QueryContext(ctx, `SELECT user_id FROM chore_assignees WHERE chore_id = ?`, choreID)
	if err != nil {
		return fmt.Errorf("list assignees: %w", err)
	}
	var stale []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return fmt.Errorf("scan assignee: %w", err)
		}
		if !keep[uid] {
			stale = append(stale, uid)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list assignees: %w", err)
	}

	for _, uid := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chore_assignees WHERE chore_id = ? AND user_id = ?`, choreID, uid); err != nil {
			return fmt.Errorf("remove assignee: %w", err)
		}
	}

	now := time.Now().UTC()
	for pos, uid := range userIDs {
		var override any
		if due, ok := overrides[uid]; ok && !due.IsZero() {
			override = due.UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chore_assignees (chore_id, user_id, position, due_override) VALUES (?, ?, ?, ?)
			 ON CONFLICT(chore_id, user_id) DO UPDATE SET position = excluded.position, due_override = excluded.due_override`,
			choreID, uid, pos, override); err != nil {
			return fmt.Errorf("upsert assignee: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO assignee_records (chore_id, user_id, state, updated_at) VALUES (?, ?, ?, ?)`,
			choreID, uid, model.StatePending, now); err != nil {
			return fmt.Errorf("create assignee record: %w", err)
		}
	}
	return nil
}

func scanRecord(scanner interface{ Scan(...any) error }) (*model.AssigneeRecord, error) {
	var r model.AssigneeRecord
	var claimed, approved, overdue, reset, lastClaimed, lastApproved, lastCompleted sql.NullTime
	err := scanner.Scan(&r.ChoreID, &r.UserID, &r.Cycle, &claimed, &approved, &r.ApprovedBy,
		&overdue, &r.Missed, &reset, &r.Fulfilled, &lastClaimed, &lastApproved, &lastCompleted, &r.MissedCount,
		&r.State, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ClaimedAt = timePtr(claimed)
	r.ApprovedAt = timePtr(approved)
	r.OverdueSince = timePtr(overdue)
	r.ResetAt = timePtr(reset)
	r.LastClaimedAt = timePtr(lastClaimed)
	r.LastApprovedAt = timePtr(lastApproved)
	r.LastCompletedAt = timePtr(lastCompleted)
	return &r, nil
}

const recordCols = `chore_id, user_id, cycle, claimed_at, approved_at, approved_by, overdue_since, missed, reset_at, fulfilled,
	last_claimed_at, last_approved_at, last_completed_at, missed_count, state, updated_at`

// ListRecords returns the chore's per-assignee records in assignee order.
func (s *ChoreStore) ListRecords(ctx context.Context, choreID string) ([]model.AssigneeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.chore_id, r.user_id, r.cycle, r.claimed_at, r.approved_at, r.approved_by, r.overdue_since, r.missed, r.reset_at, r.fulfilled,
		        r.last_claimed_at, r.last_approved_at, r.last_completed_at, r.missed_count, r.state, r.updated_at
		 FROM assignee_records r
		 JOIN chore_assignees a ON a.chore_id = r.chore_id AND a.user_id = r.user_id
		 WHERE r.chore_id = ? ORDER BY a.position`, choreID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []model.AssigneeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// SaveCycle persists the chore's rotation bookkeeping and every record in one
// transaction.
func (s *ChoreStore) SaveCycle(ctx context.Context, c model.Chore, records []model.AssigneeRecord) error {
	now := time.Now().UTC()
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE chores SET rotation_index = ?, rotation_cycle = ?, updated_at = ? WHERE id = ?`,
			c.RotationIndex, c.RotationCycle, now, c.ID)
		if err != nil {
			return fmt.Errorf("update rotation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update rotation: chore %s not found", c.ID)
		}

		for _, r := range records {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO assignee_records (`+recordCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(chore_id, user_id) DO UPDATE SET
				   cycle = excluded.cycle, claimed_at = excluded.claimed_at, approved_at = excluded.approved_at,
				   approved_by = excluded.approved_by, overdue_since = excluded.overdue_since, missed = excluded.missed,
				   reset_at = excluded.reset_at, fulfilled = excluded.fulfilled,
				   last_claimed_at = excluded.last_claimed_at, last_approved_at = excluded.last_approved_at,
				   last_completed_at = excluded.last_completed_at, missed_count = excluded.missed_count,
				   state = excluded.state, updated_at = excluded.updated_at`,
				r.ChoreID, r.UserID, r.Cycle, nullTime(r.ClaimedAt), nullTime(r.ApprovedAt), r.ApprovedBy,
				nullTime(r.OverdueSince), r.Missed, nullTime(r.ResetAt), r.Fulfilled, nullTime(r.LastClaimedAt), nullTime(r.LastApprovedAt),
				nullTime(r.LastCompletedAt), r.MissedCount, r.State, now,
			)
			if err != nil {
				return fmt.Errorf("save record %s/%s: %w", r.ChoreID, r.UserID, err)
			}
		}
		return nil
	})
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
