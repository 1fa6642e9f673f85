// Package migrate unifies the legacy kid/parent identity records into
// capability-flagged users.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dukerupert/chorekeeper/internal/model"
)

// IntegrityError reports a legacy record the transform cannot interpret.
// It aborts the run before anything is written.
type IntegrityError struct {
	Bucket string
	ID     string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("migration integrity: %s/%s: %s", e.Bucket, e.ID, e.Reason)
}

func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// Snapshot is the legacy store as read before unification.
type Snapshot struct {
	Kids    []model.LegacyRecord
	Parents []model.LegacyRecord
}

// SnapshotFrom splits staged records by bucket.
func SnapshotFrom(records []model.LegacyRecord) Snapshot {
	var s Snapshot
	for _, r := range records {
		switch r.Bucket {
		case model.BucketKids:
			s.Kids = append(s.Kids, r)
		case model.BucketParents:
			s.Parents = append(s.Parents, r)
		}
	}
	return s
}

func (s Snapshot) Empty() bool {
	return len(s.Kids) == 0 && len(s.Parents) == 0
}

// Plan is the complete outcome of a transform, ready for one atomic write.
type Plan struct {
	Users  []model.User
	Remaps []model.RemapEntry
	// Merged lists the parent ids folded into their linked kid's user.
	Merged []string
}

// Keys that describe identity rather than history; they never land in Profile.
var identityKeys = map[string]bool{
	"internal_id":   true,
	"name":          true,
	"ha_user_id":    true,
	"linked_kid_id": true,
}

// Transform computes the unified users for snap. existing holds the ids
// already present in the user collection. newID mints replacement ids for
// colliding standalone parents. Transform reads nothing else and writes
// nothing.
func Transform(snap Snapshot, existing map[string]bool, newID func() string) (Plan, error) {
	var plan Plan
	taken := make(map[string]bool, len(existing))
	for id := range existing {
		taken[id] = true
	}
	index := make(map[string]int)

	for _, rec := range sorted(snap.Kids) {
		fields, err := decode(rec)
		if err != nil {
			return Plan{}, err
		}
		var kid model.LegacyKid
		if err := identity(rec, fields, &kid.InternalID, &kid.Name); err != nil {
			return Plan{}, err
		}
		if kid.HAUserID, err = optionalString(rec, fields, "ha_user_id"); err != nil {
			return Plan{}, err
		}
		if taken[kid.InternalID] {
			return Plan{}, &IntegrityError{Bucket: rec.Bucket, ID: rec.ID, Reason: "user id already exists"}
		}
		profile, err := profileOf(fields)
		if err != nil {
			return Plan{}, &IntegrityError{Bucket: rec.Bucket, ID: rec.ID, Reason: err.Error()}
		}

		taken[kid.InternalID] = true
		index[kid.InternalID] = len(plan.Users)
		plan.Users = append(plan.Users, model.User{
			ID:               kid.InternalID,
			DisplayName:      kid.Name,
			CanBeAssigned:    true,
			ExternalAdminRef: kid.HAUserID,
			Profile:          profile,
		})
	}

	for _, rec := range sorted(snap.Parents) {
		fields, err := decode(rec)
		if err != nil {
			return Plan{}, err
		}
		var parent model.LegacyParent
		if err := identity(rec, fields, &parent.InternalID, &parent.Name); err != nil {
			return Plan{}, err
		}
		if parent.HAUserID, err = optionalString(rec, fields, "ha_user_id"); err != nil {
			return Plan{}, err
		}
		if parent.LinkedKidID, err = optionalString(rec, fields, "linked_kid_id"); err != nil {
			return Plan{}, err
		}

		if parent.LinkedKidID != "" {
			i, ok := index[parent.LinkedKidID]
			if !ok {
				return Plan{}, &IntegrityError{Bucket: rec.Bucket, ID: rec.ID,
					Reason: fmt.Sprintf("linked kid %q not found", parent.LinkedKidID)}
			}
			u := &plan.Users[i]
			u.CanApprove = true
			u.CanManage = true
			if u.ExternalAdminRef == "" {
				u.ExternalAdminRef = parent.HAUserID
			}
			plan.Merged = append(plan.Merged, parent.InternalID)
			continue
		}

		profile, err := profileOf(fields)
		if err != nil {
			return Plan{}, &IntegrityError{Bucket: rec.Bucket, ID: rec.ID, Reason: err.Error()}
		}
		id := parent.InternalID
		if taken[id] {
			for taken[id] {
				id = newID()
			}
			plan.Remaps = append(plan.Remaps, model.RemapEntry{
				Bucket:    rec.Bucket,
				LegacyID:  parent.InternalID,
				NewUserID: id,
			})
		}
		taken[id] = true
		plan.Users = append(plan.Users, model.User{
			ID:               id,
			DisplayName:      parent.Name,
			CanApprove:       true,
			CanManage:        true,
			ExternalAdminRef: parent.HAUserID,
			Profile:          profile,
		})
	}
	return plan, nil
}

func sorted(records []model.LegacyRecord) []model.LegacyRecord {
	out := make([]model.LegacyRecord, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func decode(rec model.LegacyRecord) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body, &fields); err != nil || fields == nil {
		return nil, &IntegrityError{Bucket: rec.Bucket, ID: rec.ID, Reason: "body is not a JSON object"}
	}
	return fields, nil
}

func identity(rec model.LegacyRecord, fields map[string]json.RawMessage, id, name *string) error {
	if err := json.Unmarshal(fields["internal_id"], id); err != nil || *id == "" {
		return &IntegrityError{Bucket: rec.Bucket, ID: rec.ID, Reason: "missing internal_id"}
	}
	if *id != rec.ID {
		return &IntegrityError{Bucket: rec.Bucket, ID: rec.ID,
			Reason: fmt.Sprintf("internal_id %q does not match record key", *id)}
	}
	if err := json.Unmarshal(fields["name"], name); err != nil || *name == "" {
		return &IntegrityError{Bucket: rec.Bucket, ID: rec.ID, Reason: "missing name"}
	}
	return nil
}

// optionalString reads key as a string. An absent key or null reads as "".
func optionalString(rec model.LegacyRecord, fields map[string]json.RawMessage, key string) (string, error) {
	var s string
	if raw, ok := fields[key]; ok {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &IntegrityError{Bucket: rec.Bucket, ID: rec.ID,
				Reason: fmt.Sprintf("%s is not a string", key)}
		}
	}
	return s, nil
}

// profileOf keeps every non-identity key. Map keys marshal sorted, so the
// same record always yields the same bytes.
func profileOf(fields map[string]json.RawMessage) (json.RawMessage, error) {
	rest := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if !identityKeys[k] {
			rest[k] = v
		}
	}
	b, err := json.Marshal(rest)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return b, nil
}
