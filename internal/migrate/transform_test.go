package migrate

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kid(id, body string) model.LegacyRecord {
	return model.LegacyRecord{Bucket: model.BucketKids, ID: id, Body: json.RawMessage(body)}
}

func parent(id, body string) model.LegacyRecord {
	return model.LegacyRecord{Bucket: model.BucketParents, ID: id, Body: json.RawMessage(body)}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

func byID(users []model.User) map[string]model.User {
	out := make(map[string]model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out
}

func TestTransformKidsVerbatim(t *testing.T) {
	snap := Snapshot{Kids: []model.LegacyRecord{
		kid("k2", `{"internal_id":"k2","name":"Ben","points":4}`),
		kid("k1", `{"internal_id":"k1","name":"Ann","ha_user_id":"ha-ann","history":[{"chore":"dishes"}],"points":12}`),
	}}

	plan, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)
	require.Len(t, plan.Users, 2)

	ann := plan.Users[0]
	assert.Equal(t, "k1", ann.ID)
	assert.Equal(t, "Ann", ann.DisplayName)
	assert.True(t, ann.CanBeAssigned)
	assert.False(t, ann.CanApprove)
	assert.False(t, ann.CanManage)
	assert.Equal(t, "ha-ann", ann.ExternalAdminRef)
	assert.JSONEq(t, `{"history":[{"chore":"dishes"}],"points":12}`, string(ann.Profile))
	assert.Empty(t, plan.Remaps)
}

func TestTransformLinkedParentMerges(t *testing.T) {
	snap := Snapshot{
		Kids:    []model.LegacyRecord{kid("k1", `{"internal_id":"k1","name":"Ann","points":12}`)},
		Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Ann (parent)","ha_user_id":"ha-1","linked_kid_id":"k1","theme":"dark"}`)},
	}

	plan, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)
	require.Len(t, plan.Users, 1)

	u := plan.Users[0]
	assert.Equal(t, "k1", u.ID)
	assert.Equal(t, "Ann", u.DisplayName)
	assert.True(t, u.CanBeAssigned)
	assert.True(t, u.CanApprove)
	assert.True(t, u.CanManage)
	assert.Equal(t, "ha-1", u.ExternalAdminRef)
	// The kid record stays authoritative for nested history.
	assert.JSONEq(t, `{"points":12}`, string(u.Profile))
	assert.Equal(t, []string{"p1"}, plan.Merged)
}

func TestTransformMergeKeepsExistingAdminRef(t *testing.T) {
	snap := Snapshot{
		Kids:    []model.LegacyRecord{kid("k1", `{"internal_id":"k1","name":"Ann","ha_user_id":"ha-kid"}`)},
		Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Ann","ha_user_id":"ha-parent","linked_kid_id":"k1"}`)},
	}
	plan, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)
	assert.Equal(t, "ha-kid", plan.Users[0].ExternalAdminRef)
}

func TestTransformStandaloneParent(t *testing.T) {
	snap := Snapshot{Parents: []model.LegacyRecord{
		parent("p1", `{"internal_id":"p1","name":"Mom","ha_user_id":"ha-mom"}`),
	}}

	plan, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)
	require.Len(t, plan.Users, 1)

	u := plan.Users[0]
	assert.Equal(t, "p1", u.ID)
	assert.False(t, u.CanBeAssigned)
	assert.True(t, u.CanApprove)
	assert.True(t, u.CanManage)
	assert.Equal(t, "ha-mom", u.ExternalAdminRef)
	assert.JSONEq(t, `{}`, string(u.Profile))
}

func TestTransformCollisionWithExistingUser(t *testing.T) {
	snap := Snapshot{Parents: []model.LegacyRecord{
		parent("p1", `{"internal_id":"p1","name":"Mom"}`),
	}}
	existing := map[string]bool{"p1": true}

	plan, err := Transform(snap, existing, sequentialIDs())
	require.NoError(t, err)

	require.Len(t, plan.Remaps, 1)
	assert.Equal(t, model.RemapEntry{Bucket: model.BucketParents, LegacyID: "p1", NewUserID: "new-1"}, plan.Remaps[0])
	require.Len(t, plan.Users, 1)
	assert.Equal(t, "new-1", plan.Users[0].ID)
	assert.Equal(t, "Mom", plan.Users[0].DisplayName)
}

func TestTransformCollisionWithMigratedKid(t *testing.T) {
	snap := Snapshot{
		Kids:    []model.LegacyRecord{kid("x1", `{"internal_id":"x1","name":"Ann"}`)},
		Parents: []model.LegacyRecord{parent("x1", `{"internal_id":"x1","name":"Dad"}`)},
	}

	plan, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)

	users := byID(plan.Users)
	assert.Equal(t, "Ann", users["x1"].DisplayName)
	assert.True(t, users["x1"].CanBeAssigned)
	assert.Equal(t, "Dad", users["new-1"].DisplayName)
	assert.Len(t, plan.Remaps, 1)
}

func TestTransformNewIDCollisionRetries(t *testing.T) {
	snap := Snapshot{Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Mom"}`)}}
	existing := map[string]bool{"p1": true, "new-1": true}

	plan, err := Transform(snap, existing, sequentialIDs())
	require.NoError(t, err)
	assert.Equal(t, "new-2", plan.Users[0].ID)
	require.Len(t, plan.Remaps, 1)
	assert.Equal(t, "new-2", plan.Remaps[0].NewUserID)
}

func TestTransformIntegrityErrors(t *testing.T) {
	tests := []struct {
		name     string
		snap     Snapshot
		existing map[string]bool
		reason   string
	}{
		{
			name:   "dangling link",
			snap:   Snapshot{Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Mom","linked_kid_id":"ghost"}`)}},
			reason: `linked kid "ghost" not found`,
		},
		{
			name:   "numeric link",
			snap:   Snapshot{Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Mom","linked_kid_id":42}`)}},
			reason: "linked_kid_id is not a string",
		},
		{
			name:   "object admin ref",
			snap:   Snapshot{Kids: []model.LegacyRecord{kid("k1", `{"internal_id":"k1","name":"Ann","ha_user_id":{"id":"x"}}`)}},
			reason: "ha_user_id is not a string",
		},
		{
			name:   "non-object body",
			snap:   Snapshot{Kids: []model.LegacyRecord{kid("k1", `["k1"]`)}},
			reason: "body is not a JSON object",
		},
		{
			name:   "null body",
			snap:   Snapshot{Kids: []model.LegacyRecord{kid("k1", `null`)}},
			reason: "body is not a JSON object",
		},
		{
			name:   "missing id",
			snap:   Snapshot{Kids: []model.LegacyRecord{kid("k1", `{"name":"Ann"}`)}},
			reason: "missing internal_id",
		},
		{
			name:   "missing name",
			snap:   Snapshot{Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1"}`)}},
			reason: "missing name",
		},
		{
			name:   "key mismatch",
			snap:   Snapshot{Kids: []model.LegacyRecord{kid("k1", `{"internal_id":"k2","name":"Ann"}`)}},
			reason: `internal_id "k2" does not match record key`,
		},
		{
			name:     "kid already present",
			snap:     Snapshot{Kids: []model.LegacyRecord{kid("k1", `{"internal_id":"k1","name":"Ann"}`)}},
			existing: map[string]bool{"k1": true},
			reason:   "user id already exists",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.snap, tt.existing, sequentialIDs())
			require.Error(t, err)
			assert.True(t, IsIntegrityError(err))

			var ie *IntegrityError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.reason, ie.Reason)
		})
	}
}

func TestTransformNullOptionalKeys(t *testing.T) {
	snap := Snapshot{
		Kids:    []model.LegacyRecord{kid("k1", `{"internal_id":"k1","name":"Ann","ha_user_id":null}`)},
		Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Mom","linked_kid_id":null}`)},
	}
	plan, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)
	require.Len(t, plan.Users, 2)
	assert.Empty(t, plan.Users[0].ExternalAdminRef)
	assert.Empty(t, plan.Remaps)
}

func TestTransformDeterministic(t *testing.T) {
	snap := Snapshot{
		Kids: []model.LegacyRecord{
			kid("k1", `{"internal_id":"k1","name":"Ann","b":1,"a":{"z":1,"y":2}}`),
			kid("k0", `{"internal_id":"k0","name":"Zed"}`),
		},
		Parents: []model.LegacyRecord{parent("p1", `{"internal_id":"p1","name":"Mom"}`)},
	}

	first, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)
	second, err := Transform(snap, nil, sequentialIDs())
	require.NoError(t, err)

	a, _ := json.Marshal(first.Users)
	b, _ := json.Marshal(second.Users)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, "k0", first.Users[0].ID)
}

func TestSnapshotFrom(t *testing.T) {
	s := SnapshotFrom([]model.LegacyRecord{kid("k1", `{}`), parent("p1", `{}`), {Bucket: "other", ID: "x"}})
	assert.Len(t, s.Kids, 1)
	assert.Len(t, s.Parents, 1)
	assert.False(t, s.Empty())
	assert.True(t, Snapshot{}.Empty())
}
