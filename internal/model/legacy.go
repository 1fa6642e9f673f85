package model

import (
	"encoding/json"
	"time"
)

const (
	BucketKids    = "kids"
	BucketParents = "parents"
)

// LegacyKid is a pre-unification assignable person record.
type LegacyKid struct {
	InternalID string `json:"internal_id"`
	Name       string `json:"name"`
	HAUserID   string `json:"ha_user_id"`
}

// LegacyParent is a pre-unification approver record. LinkedKidID points at the
// kid record representing the same person, if any.
type LegacyParent struct {
	InternalID  string `json:"internal_id"`
	Name        string `json:"name"`
	HAUserID    string `json:"ha_user_id"`
	LinkedKidID string `json:"linked_kid_id"`
}

// LegacyRecord is one staged row of a legacy bucket.
type LegacyRecord struct {
	Bucket string          `json:"bucket"`
	ID     string          `json:"id"`
	Body   json.RawMessage `json:"body"`
}

// RemapEntry records an identifier rewritten during unification because it
// collided with an existing user.
type RemapEntry struct {
	ID        int64     `json:"id"`
	Bucket    string    `json:"bucket"`
	LegacyID  string    `json:"legacy_id"`
	NewUserID string    `json:"new_user_id"`
	CreatedAt time.Time `json:"created_at"`
}
