package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/dukerupert/chorekeeper/internal/database"
	"github.com/dukerupert/chorekeeper/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, us *UserStore, id string, caps model.Capabilities) *model.User {
	t.Helper()
	u, err := us.Create(context.Background(), &model.User{
		ID:            id,
		DisplayName:   id,
		CanBeAssigned: caps.CanBeAssigned,
		CanApprove:    caps.CanApprove,
		CanManage:     caps.CanManage,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func TestUserCreate(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	ctx := context.Background()

	u, err := us.Create(ctx, &model.User{
		ID:            "kid-1",
		DisplayName:   "Alice",
		CanBeAssigned: true,
		Profile:       json.RawMessage(`{"points":12}`),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.DisplayName != "Alice" {
		t.Errorf("display_name = %q, want %q", u.DisplayName, "Alice")
	}
	if !u.CanBeAssigned || u.CanApprove || u.CanManage {
		t.Errorf("capabilities = %+v", u.Capabilities())
	}
	if string(u.Profile) != `{"points":12}` {
		t.Errorf("profile = %s", u.Profile)
	}
}

func TestUserCreateDefaultsProfile(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	u := mustCreateUser(t, us, "u1", model.Capabilities{})
	if string(u.Profile) != "{}" {
		t.Errorf("profile = %s, want {}", u.Profile)
	}
}

func TestUserCreateDuplicateID(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	mustCreateUser(t, us, "u1", model.Capabilities{})
	if _, err := us.Create(context.Background(), &model.User{ID: "u1", DisplayName: "again"}); err == nil {
		t.Fatal("expected error for duplicate id, got nil")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	us := NewUserStore(openTestDB(t))

	u, err := us.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
}

func TestUserListAndIDs(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	mustCreateUser(t, us, "a", model.Capabilities{})
	mustCreateUser(t, us, "b", model.Capabilities{})

	users, err := us.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}

	ids, err := us.IDs(context.Background())
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if !ids["a"] || !ids["b"] || len(ids) != 2 {
		t.Errorf("ids = %v", ids)
	}
}

func TestUserUpdateCapabilities(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	mustCreateUser(t, us, "u1", model.Capabilities{CanBeAssigned: true})

	u, err := us.UpdateCapabilities(context.Background(), "u1", model.Capabilities{CanApprove: true, CanManage: true})
	if err != nil {
		t.Fatalf("update capabilities: %v", err)
	}
	if u.CanBeAssigned || !u.CanApprove || !u.CanManage {
		t.Errorf("capabilities = %+v", u.Capabilities())
	}
}

func TestUserUpdateDisplayName(t *testing.T) {
	us := NewUserStore(openTestDB(t))
	mustCreateUser(t, us, "u1", model.Capabilities{})

	u, err := us.UpdateDisplayName(context.Background(), "u1", "Bob")
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if u.DisplayName != "Bob" {
		t.Errorf("display_name = %q, want Bob", u.DisplayName)
	}
}

func TestAdminStore(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	as := NewAdminStore(db)
	ctx := context.Background()

	if _, err := us.Create(ctx, &model.User{ID: "p1", DisplayName: "Parent", ExternalAdminRef: "ha-1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	mustCreateUser(t, us, "k1", model.Capabilities{CanBeAssigned: true})

	ok, err := as.IsAdmin(ctx, "p1")
	if err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if ok {
		t.Error("expected no override before host admin is registered")
	}

	if err := as.AddHostAdmin(ctx, "ha-1"); err != nil {
		t.Fatalf("add host admin: %v", err)
	}
	if ok, _ := as.IsAdmin(ctx, "p1"); !ok {
		t.Error("expected override for linked host admin")
	}
	if ok, _ := as.IsAdmin(ctx, "k1"); ok {
		t.Error("unlinked user must not inherit the override")
	}

	if err := as.RemoveHostAdmin(ctx, "ha-1"); err != nil {
		t.Fatalf("remove host admin: %v", err)
	}
	if ok, _ := as.IsAdmin(ctx, "p1"); ok {
		t.Error("expected override gone after removal")
	}
}
