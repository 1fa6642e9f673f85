package model

import "time"

type CompletionCriteria string

const (
	CriteriaIndependent CompletionCriteria = "independent"
	CriteriaShared      CompletionCriteria = "shared"
	CriteriaSharedFirst CompletionCriteria = "shared_first"
	CriteriaSharedAll   CompletionCriteria = "shared_all"
	CriteriaRotation    CompletionCriteria = "rotation"
)

func (c CompletionCriteria) Valid() bool {
	switch c {
	case CriteriaIndependent, CriteriaShared, CriteriaSharedFirst, CriteriaSharedAll, CriteriaRotation:
		return true
	}
	return false
}

// IsShared reports whether one approval completes the cycle for every assignee.
func (c CompletionCriteria) IsShared() bool {
	return c == CriteriaShared || c == CriteriaSharedFirst
}

type ResetPolicy string

const (
	ResetUponCompletion ResetPolicy = "upon_completion"
	ResetScheduled      ResetPolicy = "scheduled"
	ResetManual         ResetPolicy = "manual"
)

func (p ResetPolicy) Valid() bool {
	switch p {
	case ResetUponCompletion, ResetScheduled, ResetManual:
		return true
	}
	return false
}

const (
	DefaultDueWithin = 24 * time.Hour
	DefaultDueSoon   = 2 * time.Hour
)

// Schedule describes when cycles open and fall due.
type Schedule struct {
	Rule         string               `json:"rule"`
	Start        time.Time            `json:"start"`
	DueWithin    time.Duration        `json:"due_within"`
	DueSoon      time.Duration        `json:"due_soon"`
	Grace        time.Duration        `json:"grace"`
	DueOverrides map[string]time.Time `json:"due_overrides,omitempty"`
}

// DueOffset returns DueWithin, falling back to DefaultDueWithin.
func (s Schedule) DueOffset() time.Duration {
	if s.DueWithin <= 0 {
		return DefaultDueWithin
	}
	return s.DueWithin
}

// SoonWindow returns DueSoon, falling back to DefaultDueSoon.
func (s Schedule) SoonWindow() time.Duration {
	if s.DueSoon <= 0 {
		return DefaultDueSoon
	}
	return s.DueSoon
}

type Chore struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Points        int                `json:"points"`
	Criteria      CompletionCriteria `json:"completion_criteria"`
	Assignees     []string           `json:"assigned_user_ids"`
	Schedule      Schedule           `json:"schedule"`
	ResetPolicy   ResetPolicy        `json:"reset_policy"`
	RotationIndex int                `json:"rotation_index"`
	RotationCycle string             `json:"rotation_cycle,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IsAssigned reports whether userID is in the assignee list.
func (c Chore) IsAssigned(userID string) bool {
	for _, id := range c.Assignees {
		if id == userID {
			return true
		}
	}
	return false
}
