// Package backup takes point-in-time snapshots of the database before
// destructive steps such as user unification.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds snapshot configuration. An empty Passphrase leaves snapshots
// unencrypted; a disabled S3 block keeps them local.
type Config struct {
	Dir        string
	Passphrase string
	S3         S3Config
}

// Snapshotter writes consistent copies of the live database with VACUUM INTO.
type Snapshotter struct {
	cfg     Config
	db      *sql.DB
	backups *store.BackupStore
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time
}

func NewSnapshotter(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Snapshotter {
	s := &Snapshotter{
		cfg:     cfg,
		db:      db,
		backups: bs,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.S3.Enabled() {
		s.client = newS3Client(cfg.S3)
	}
	return s
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Snapshot writes a snapshot tagged with reason and records it in the
// backups table. A failed snapshot is recorded as failed and returned as an
// error; callers treat that as fatal for the step it guards.
func (s *Snapshotter) Snapshot(ctx context.Context, reason string) (*model.Backup, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	stamp := s.now().UTC().Format("2006-01-02T150405Z")
	dbPath := filepath.Join(s.cfg.Dir, fmt.Sprintf("chorekeeper-%s-%s.db", reason, stamp))

	record, err := s.backups.Create(ctx, reason, dbPath)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	fail := func(err error) (*model.Backup, error) {
		if uerr := s.backups.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			s.logger.Error("mark backup failed", "backup_id", record.ID, "error", uerr)
		}
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dbPath); err != nil {
		return fail(fmt.Errorf("vacuum into: %w", err))
	}

	finalPath := dbPath
	encrypted := s.cfg.Passphrase != ""
	if encrypted {
		finalPath = dbPath + ".enc"
		if err := SealFile(dbPath, finalPath, s.cfg.Passphrase); err != nil {
			return fail(fmt.Errorf("encrypt snapshot: %w", err))
		}
		os.Remove(dbPath)
	}

	stat, err := os.Stat(finalPath)
	if err != nil {
		return fail(fmt.Errorf("stat snapshot: %w", err))
	}

	var key string
	if s.client != nil {
		if err := s.backups.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
			return fail(err)
		}
		key = path.Join(s.cfg.S3.Prefix, filepath.Base(finalPath))
		if err := s.upload(ctx, finalPath, key, stat.Size()); err != nil {
			return fail(err)
		}
	}

	if err := s.backups.UpdateCompleted(ctx, record.ID, finalPath, stat.Size(), key, encrypted); err != nil {
		return nil, err
	}
	s.logger.Info("snapshot written", "backup_id", record.ID, "reason", reason, "path", finalPath, "s3_key", key, "bytes", stat.Size())

	return s.backups.GetByID(ctx, record.ID)
}

func (s *Snapshotter) upload(ctx context.Context, file, key string, size int64) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}
