package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: "u1", Admin: true})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "u1")
	}
	if !got.Admin {
		t.Error("Admin = false, want true")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: "u7"})
	if UserID(ctx) != "u7" {
		t.Errorf("UserID = %q, want u7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != "" {
		t.Error("expected empty id for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(WithAuth(context.Background(), AuthContext{Admin: true})) {
		t.Error("expected IsAdmin = true")
	}
	if IsAdmin(WithAuth(context.Background(), AuthContext{})) {
		t.Error("expected IsAdmin = false without claim")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}

func TestContextOverride(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: "u1", Admin: true})
	var o ContextOverride

	if ok, _ := o.IsAdmin(ctx, "u1"); !ok {
		t.Error("expected override for the token's own user")
	}
	if ok, _ := o.IsAdmin(ctx, "u2"); ok {
		t.Error("override must not extend to other users")
	}
	if ok, _ := o.IsAdmin(context.Background(), "u1"); ok {
		t.Error("expected no override without auth context")
	}
}
