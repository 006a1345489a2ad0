package repository

import (
	"context"

	"saas-control-plane/internal/membership/domain"
)

// Repository stores (user, organization) memberships. A pair has at most one row.
type Repository interface {
	// GetMembershipByUserAndOrg returns (nil, nil) when the user is not a member.
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	// ListMembershipsByOrg returns the org's members ordered by (created_at, id).
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	// ListMembershipsByUser returns the user's memberships ordered by (created_at, id).
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	// CreateMembership inserts m; an existing pair is apperr.ErrConflict.
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error
	// UpdateRole sets the role and returns the updated row, or nil if the pair does not exist.
	UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error)
	CountByOrg(ctx context.Context, orgID string) (int, error)
}
