package model

import (
	"encoding/json"
	"time"
)

// User is one person. Capabilities are independent flags; nothing about a user's
// assignments or history ever grants one.
type User struct {
	ID               string          `json:"id"`
	DisplayName      string          `json:"display_name"`
	CanBeAssigned    bool            `json:"can_be_assigned"`
	CanApprove       bool            `json:"can_approve"`
	CanManage        bool            `json:"can_manage"`
	ExternalAdminRef string          `json:"external_admin_ref,omitempty"`
	Profile          json.RawMessage `json:"profile,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Capabilities is the mutable capability set of a user.
type Capabilities struct {
	CanBeAssigned bool `json:"can_be_assigned"`
	CanApprove    bool `json:"can_approve"`
	CanManage     bool `json:"can_manage"`
}

func (u User) Capabilities() Capabilities {
	return Capabilities{
		CanBeAssigned: u.CanBeAssigned,
		CanApprove:    u.CanApprove,
		CanManage:     u.CanManage,
	}
}

// Inert reports whether the user holds no capability at all.
func (u User) Inert() bool {
	return !u.CanBeAssigned && !u.CanApprove && !u.CanManage
}
