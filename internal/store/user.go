package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var profile string
	err := scanner.Scan(&u.ID, &u.DisplayName, &u.CanBeAssigned, &u.CanApprove, &u.CanManage,
		&u.ExternalAdminRef, &profile, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Profile = json.RawMessage(profile)
	return &u, nil
}

const userCols = `id, display_name, can_be_assigned, can_approve, can_manage, external_admin_ref, profile, created_at, updated_at`

func insertUser(ctx context.Context, ex execer, u *model.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	profile := string(u.Profile)
	if profile == "" {
		profile = "{}"
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO users (`+userCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.CanBeAssigned, u.CanApprove, u.CanManage,
		u.ExternalAdminRef, profile, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, err)
	}
	return nil
}

// Create inserts u. The caller assigns the id.
func (s *UserStore) Create(ctx context.Context, u *model.User) (*model.User, error) {
	if err := insertUser(ctx, s.db, u); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, u.ID)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// IDs returns the set of every user id.
func (s *UserStore) IDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *UserStore) UpdateCapabilities(ctx context.Context, id string, caps model.Capabilities) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET can_be_assigned = ?, can_approve = ?, can_manage = ?, updated_at = ? WHERE id = ?`,
		caps.CanBeAssigned, caps.CanApprove, caps.CanManage, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update capabilities: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) UpdateDisplayName(ctx context.Context, id, name string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update display name: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes the user. Assignments and per-assignee records cascade.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// AdminStore answers the admin override from host-runtime admin accounts
// linked through users.external_admin_ref.
type AdminStore struct {
	db *sql.DB
}

func NewAdminStore(db *sql.DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users u
		 JOIN host_admins h ON h.external_ref = u.external_admin_ref
		 WHERE u.id = ? AND u.external_admin_ref != ''`, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check host admin: %w", err)
	}
	return count > 0, nil
}

func (s *AdminStore) AddHostAdmin(ctx context.Context, externalRef string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO host_admins (external_ref) VALUES (?)`, externalRef)
	if err != nil {
		return fmt.Errorf("add host admin: %w", err)
	}
	return nil
}

func (s *AdminStore) RemoveHostAdmin(ctx context.Context, externalRef string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM host_admins WHERE external_ref = ?`, externalRef)
	if err != nil {
		return fmt.Errorf("remove host admin: %w", err)
	}
	return nil
}
