package auth

import "context"

type contextKey struct{}

// AuthContext identifies the actor behind a request. Admin mirrors the
// host-runtime admin claim on the bearer token and is consulted only as an
// authorization override, never as a capability.
type AuthContext struct {
	UserID string
	Admin  bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Admin
}

// ContextOverride grants the admin override when the request's own token
// carries the admin claim for the same user.
type ContextOverride struct{}

func (ContextOverride) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ac, ok := FromContext(ctx)
	if !ok {
		return false, nil
	}
	return ac.Admin && ac.UserID == userID, nil
}
