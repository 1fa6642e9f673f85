package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
)

func TestBackupCreate(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))

	b, err := bs.Create(context.Background(), "unify-users", "/var/backups/pre-unify.db")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusPending)
	}
}

func TestBackupUpdateStatus(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	ctx := context.Background()
	b, _ := bs.Create(ctx, "unify-users", "x.db")

	if err := bs.UpdateStatus(ctx, b.ID, model.BackupStatusFailed, "upload failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := bs.GetByID(ctx, b.ID)
	if got.Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusFailed)
	}
	if got.ErrorMessage != "upload failed" {
		t.Errorf("error_message = %q, want %q", got.ErrorMessage, "upload failed")
	}
}

func TestBackupUpdateCompleted(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	ctx := context.Background()
	b, _ := bs.Create(ctx, "unify-users", "x.db.enc")

	if err := bs.UpdateCompleted(ctx, b.ID, "x.db.enc", 1024, "backups/x.db.enc", true); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	got, _ := bs.GetByID(ctx, b.ID)
	if got.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusCompleted)
	}
	if got.SizeBytes != 1024 || got.S3Key != "backups/x.db.enc" || !got.Encrypted {
		t.Errorf("backup = %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestBackupListAndLatest(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	ctx := context.Background()

	b1, _ := bs.Create(ctx, "first", "1.db")
	bs.UpdateCompleted(ctx, b1.ID, "1.db", 100, "", false)
	time.Sleep(10 * time.Millisecond)
	b2, _ := bs.Create(ctx, "second", "2.db")
	bs.UpdateCompleted(ctx, b2.ID, "2.db", 200, "", false)
	b3, _ := bs.Create(ctx, "third", "3.db")
	bs.UpdateStatus(ctx, b3.ID, model.BackupStatusFailed, "error")

	all, err := bs.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Reason != "third" {
		t.Errorf("first entry = %q, want third", all[0].Reason)
	}

	latest, err := bs.LatestCompleted(ctx)
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest == nil || latest.Reason != "second" {
		t.Errorf("latest = %+v, want second", latest)
	}
}
