package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/chorekeeper/internal/database"
	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func setupSnapshotter(t *testing.T, cfg Config) (*Snapshotter, *store.BackupStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`INSERT INTO users (id, display_name) VALUES ('u1', 'Ann')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	bs := store.NewBackupStore(db)
	s := NewSnapshotter(cfg, db, bs, slog.Default())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, bs
}

func countUsers(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	return n
}

func TestSnapshotLocal(t *testing.T) {
	s, _ := setupSnapshotter(t, Config{})

	b, err := s.Snapshot(context.Background(), "unify-users")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if b.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusCompleted)
	}
	if b.Encrypted || b.S3Key != "" {
		t.Errorf("backup = %+v, want plain local snapshot", b)
	}
	if filepath.Base(b.Path) != "chorekeeper-unify-users-2026-03-01T120000Z.db" {
		t.Errorf("path = %q", b.Path)
	}
	if n := countUsers(t, b.Path); n != 1 {
		t.Errorf("snapshot users = %d, want 1", n)
	}
}

func TestSnapshotEncryptedUpload(t *testing.T) {
	s, _ := setupSnapshotter(t, Config{Passphrase: "pass", S3: S3Config{Bucket: "b", Prefix: "snaps"}})
	mock := newMockS3()
	s.client = mock

	b, err := s.Snapshot(context.Background(), "unify-users")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !b.Encrypted {
		t.Error("expected encrypted snapshot")
	}
	if b.S3Key != "snaps/chorekeeper-unify-users-2026-03-01T120000Z.db.enc" {
		t.Errorf("s3 key = %q", b.S3Key)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.Dir, "chorekeeper-unify-users-2026-03-01T120000Z.db")); !os.IsNotExist(err) {
		t.Error("plaintext snapshot should be removed after sealing")
	}

	uploaded, ok := mock.objects[b.S3Key]
	if !ok {
		t.Fatal("snapshot not uploaded")
	}
	plain := filepath.Join(t.TempDir(), "restored.db")
	sealed := filepath.Join(t.TempDir(), "sealed.db.enc")
	os.WriteFile(sealed, uploaded, 0600)
	if err := OpenFile(sealed, plain, "pass"); err != nil {
		t.Fatalf("open uploaded snapshot: %v", err)
	}
	if n := countUsers(t, plain); n != 1 {
		t.Errorf("snapshot users = %d, want 1", n)
	}
}

func TestSnapshotUploadFailure(t *testing.T) {
	s, bs := setupSnapshotter(t, Config{S3: S3Config{Bucket: "b"}})
	mock := newMockS3()
	mock.putErr = errors.New("network down")
	s.client = mock

	if _, err := s.Snapshot(context.Background(), "unify-users"); err == nil {
		t.Fatal("expected error on upload failure")
	}

	backups, _ := bs.List(context.Background(), 10)
	if len(backups) != 1 {
		t.Fatalf("backups = %d, want 1", len(backups))
	}
	if backups[0].Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want %q", backups[0].Status, model.BackupStatusFailed)
	}
	if backups[0].ErrorMessage == "" {
		t.Error("expected error message recorded")
	}
}

func TestS3ConfigEnabled(t *testing.T) {
	if (S3Config{Bucket: "b"}).Enabled() {
		t.Error("bucket without credentials should be disabled")
	}
	if !(S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}).Enabled() {
		t.Error("complete config should be enabled")
	}
}
