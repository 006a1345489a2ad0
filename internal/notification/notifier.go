// Package notification delivers member-facing notifications (role changes, removals, invitations).
package notification

import (
	"context"

	membershipdomain "saas-control-plane/internal/membership/domain"
)

// RoleChange tells a member their role in an organization changed.
type RoleChange struct {
	Email     string
	Name      string
	OrgName   string
	OldRole   membershipdomain.Role
	NewRole   membershipdomain.Role
	ChangedBy string
}

// AccessRevocation tells a former member they were removed from an organization.
type AccessRevocation struct {
	Email     string
	Name      string
	OrgName   string
	RemovedBy string
}

// Invite offers membership to an email address. Token is the raw (unhashed) invitation token.
type Invite struct {
	Email       string
	OrgName     string
	InviterName string
	Role        membershipdomain.Role
	Token       string
}

// Notifier sends notifications. Implementations may block on network I/O; wrap with Async for
// fire-and-forget delivery from request handlers.
type Notifier interface {
	RoleChanged(ctx context.Context, n RoleChange) error
	AccessRevoked(ctx context.Context, n AccessRevocation) error
	Invited(ctx context.Context, n Invite) error
}
