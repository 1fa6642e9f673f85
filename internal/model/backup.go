package model

import "time"

type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusUploading BackupStatus = "uploading"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// Backup is a snapshot of the whole store, taken before a destructive step
// such as user unification.
type Backup struct {
	ID           int64        `json:"id"`
	Reason       string       `json:"reason"`
	Path         string       `json:"path"`
	S3Key        string       `json:"s3_key,omitempty"`
	Encrypted    bool         `json:"encrypted"`
	SizeBytes    int64        `json:"size_bytes"`
	Status       BackupStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}
