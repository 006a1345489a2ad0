package engine

import (
	"context"
	"testing"

	membershipdomain "saas-control-plane/internal/membership/domain"
)

func newEvaluator(t *testing.T) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background())
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := newEvaluator(t).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_EvaluateMemberMutation(t *testing.T) {
	e := newEvaluator(t)
	const (
		owner = membershipdomain.RoleOwner
		admin = membershipdomain.RoleAdmin
		user  = membershipdomain.RoleUser
	)
	testCases := []struct {
		name    string
		m       MemberMutation
		allowed bool
		reasons []string
	}{
		{
			name:    "admin promotes user to admin",
			m:       MemberMutation{Action: ActionChangeRole, ActorID: "a", ActorRole: admin, TargetID: "u", TargetRole: user, NewRole: admin},
			allowed: true,
		},
		{
			name:    "owner demotes admin",
			m:       MemberMutation{Action: ActionChangeRole, ActorID: "o", ActorRole: owner, TargetID: "a", TargetRole: admin, NewRole: user},
			allowed: true,
		},
		{
			name:    "admin removes user",
			m:       MemberMutation{Action: ActionRemove, ActorID: "a", ActorRole: admin, TargetID: "u", TargetRole: user},
			allowed: true,
		},
		{
			name:    "change own role",
			m:       MemberMutation{Action: ActionChangeRole, ActorID: "a", ActorRole: admin, TargetID: "a", TargetRole: admin, NewRole: user},
			reasons: []string{"cannot change your own role"},
		},
		{
			name:    "remove self",
			m:       MemberMutation{Action: ActionRemove, ActorID: "a", ActorRole: admin, TargetID: "a", TargetRole: admin},
			reasons: []string{"cannot remove yourself"},
		},
		{
			name:    "change owner role",
			m:       MemberMutation{Action: ActionChangeRole, ActorID: "a", ActorRole: admin, TargetID: "o", TargetRole: owner, NewRole: user},
			reasons: []string{"cannot change the owner's role"},
		},
		{
			name:    "remove owner",
			m:       MemberMutation{Action: ActionRemove, ActorID: "a", ActorRole: admin, TargetID: "o", TargetRole: owner},
			reasons: []string{"cannot remove the owner"},
		},
		{
			name:    "promote to owner",
			m:       MemberMutation{Action: ActionChangeRole, ActorID: "o", ActorRole: owner, TargetID: "u", TargetRole: user, NewRole: owner},
			reasons: []string{"cannot promote a member to owner"},
		},
		{
			name: "owner changes own role to owner",
			m:    MemberMutation{Action: ActionChangeRole, ActorID: "o", ActorRole: owner, TargetID: "o", TargetRole: owner, NewRole: owner},
			reasons: []string{
				"cannot change the owner's role",
				"cannot change your own role",
				"cannot promote a member to owner",
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := e.EvaluateMemberMutation(context.Background(), tc.m)
			if err != nil {
				t.Fatalf("EvaluateMemberMutation: %v", err)
			}
			if d.Allowed != tc.allowed {
				t.Fatalf("Allowed = %v, want %v (reasons %v)", d.Allowed, tc.allowed, d.Reasons)
			}
			if len(d.Reasons) != len(tc.reasons) {
				t.Fatalf("Reasons = %v, want %v", d.Reasons, tc.reasons)
			}
			for i := range tc.reasons {
				if d.Reasons[i] != tc.reasons[i] {
					t.Errorf("Reasons[%d] = %q, want %q", i, d.Reasons[i], tc.reasons[i])
				}
			}
		})
	}
}
