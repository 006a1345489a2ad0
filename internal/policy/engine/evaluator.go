package engine

import (
	"context"

	membershipdomain "saas-control-plane/internal/membership/domain"
)

// MutationAction is the kind of member mutation being evaluated.
type MutationAction string

const (
	ActionChangeRole MutationAction = "change_role"
	ActionRemove     MutationAction = "remove"
)

// MemberMutation describes a caller's attempt to change or remove another member.
type MemberMutation struct {
	Action     MutationAction
	ActorID    string
	ActorRole  membershipdomain.Role
	TargetID   string
	TargetRole membershipdomain.Role
	// NewRole is set for ActionChangeRole only.
	NewRole membershipdomain.Role
}

// Decision is the policy outcome. Reasons lists every violated rule in sorted order.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Evaluator evaluates member-mutation rules.
type Evaluator interface {
	EvaluateMemberMutation(ctx context.Context, m MemberMutation) (Decision, error)
}
