package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/google/uuid"
)

// SnapshotReason tags the backup taken before unification writes.
const SnapshotReason = "unify-users"

// LegacySource reads staged legacy records and commits a plan atomically.
type LegacySource interface {
	Count(ctx context.Context) (int, error)
	Load(ctx context.Context) ([]model.LegacyRecord, error)
	Apply(ctx context.Context, users []model.User, remaps []model.RemapEntry, at time.Time) error
}

// UserIDs lists the ids already present in the user collection.
type UserIDs interface {
	IDs(ctx context.Context) (map[string]bool, error)
}

// Snapshotter takes a backup of the whole store.
type Snapshotter interface {
	Snapshot(ctx context.Context, reason string) (*model.Backup, error)
}

// Result summarizes one run.
type Result struct {
	AlreadyMigrated bool
	Users           int
	Merged          int
	Remaps          []model.RemapEntry
	Backup          *model.Backup
}

// Migrator runs unification once and is a no-op on every later run.
type Migrator struct {
	legacy   LegacySource
	users    UserIDs
	snapshot Snapshotter
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

func NewMigrator(legacy LegacySource, users UserIDs, snapshot Snapshotter, logger *slog.Logger) *Migrator {
	return &Migrator{
		legacy:   legacy,
		users:    users,
		snapshot: snapshot,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Run checks for staged legacy records first and returns immediately when
// there are none. Otherwise it transforms the whole snapshot in memory,
// takes a backup and commits everything in one transaction. Any failure
// before the commit leaves the store untouched.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	n, err := m.legacy.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("check legacy records: %w", err)
	}
	if n == 0 {
		m.logger.Debug("users already unified")
		return Result{AlreadyMigrated: true}, nil
	}

	records, err := m.legacy.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load legacy records: %w", err)
	}
	existing, err := m.users.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load user ids: %w", err)
	}

	plan, err := Transform(SnapshotFrom(records), existing, m.newID)
	if err != nil {
		m.logger.Error("unification aborted", "error", err)
		return Result{}, err
	}

	backup, err := m.snapshot.Snapshot(ctx, SnapshotReason)
	if err != nil {
		return Result{}, fmt.Errorf("pre-migration snapshot: %w", err)
	}

	at := m.now().UTC()
	if err := m.legacy.Apply(ctx, plan.Users, plan.Remaps, at); err != nil {
		return Result{}, fmt.Errorf("apply unification: %w", err)
	}

	for _, r := range plan.Remaps {
		m.logger.Info("collision remapped",
			"event", "CollisionRemapped",
			"bucket", r.Bucket,
			"legacy_id", r.LegacyID,
			"new_user_id", r.NewUserID,
		)
	}
	m.logger.Info("users unified",
		"users", len(plan.Users),
		"merged", len(plan.Merged),
		"remaps", len(plan.Remaps),
		"backup", backup.Path,
	)
	return Result{
		Users:  len(plan.Users),
		Merged: len(plan.Merged),
		Remaps: plan.Remaps,
		Backup: backup,
	}, nil
}
