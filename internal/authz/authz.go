// Package authz decides whether a user may perform a workflow action.
//
// Decisions read only the actor's capability flags, the target chore's
// assignee list and the admin override. Assignment history, approvals and
// the legacy kid/parent split never grant anything.
package authz

import (
	"context"
	"log/slog"

	"github.com/dukerupert/chorekeeper/internal/model"
)

type Action string

const (
	ActionClaim   Action = "claim"
	ActionApprove Action = "approve"
	ActionManage  Action = "manage"
)

// Target is the object an action applies to. Claim requires Chore.
type Target struct {
	Chore *model.Chore
}

// Decision is the outcome of an authorization check. Reason names the
// missing capability when the action is denied.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	Override bool   `json:"override,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Decide evaluates action for actor. admin reports whether the host-runtime
// admin override applies to actor; it covers approve and manage only.
func Decide(actor model.User, action Action, target Target, admin bool) Decision {
	switch action {
	case ActionApprove:
		if admin {
			return Decision{Allowed: true, Override: true}
		}
		if !actor.CanApprove {
			return deny("missing capability can_approve")
		}
		return allow()
	case ActionManage:
		if admin {
			return Decision{Allowed: true, Override: true}
		}
		if !actor.CanManage {
			return deny("missing capability can_manage")
		}
		return allow()
	case ActionClaim:
		if !actor.CanBeAssigned {
			return deny("missing capability can_be_assigned")
		}
		if target.Chore == nil || !target.Chore.IsAssigned(actor.ID) {
			return deny("not assigned to chore")
		}
		return allow()
	}
	return deny("unknown action " + string(action))
}

// AdminOverride reports whether userID holds host-runtime admin rights.
type AdminOverride interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// AnyOverride grants the override when any member does. Lookup errors from
// one member do not hide a grant from another.
type AnyOverride []AdminOverride

func (a AnyOverride) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var firstErr error
	for _, o := range a {
		ok, err := o.IsAdmin(ctx, userID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

// Resolver combines Decide with an override lookup.
type Resolver struct {
	override AdminOverride
	logger   *slog.Logger
}

// NewResolver creates a Resolver. override may be nil.
func NewResolver(override AdminOverride, logger *slog.Logger) *Resolver {
	return &Resolver{override: override, logger: logger}
}

func (r *Resolver) Authorize(ctx context.Context, actor model.User, action Action, target Target) Decision {
	return Decide(actor, action, target, r.admin(ctx, actor, action))
}

func (r *Resolver) admin(ctx context.Context, actor model.User, action Action) bool {
	if r.override == nil || action == ActionClaim {
		return false
	}
	ok, err := r.override.IsAdmin(ctx, actor.ID)
	if err != nil {
		r.logger.Warn("admin override lookup failed", "user_id", actor.ID, "error", err)
		return false
	}
	return ok
}
