package repository

import (
	"context"

	"saas-control-plane/internal/organization/domain"
)

// Repository defines persistence for organizations.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error
	UpdateOrganization(ctx context.Context, o *domain.Org) error
	DeleteOrganization(ctx context.Context, id string) error
	// LockOrganization takes a row lock on the organization for the rest of the transaction.
	// Returns false if it does not exist.
	LockOrganization(ctx context.Context, id string) (bool, error)
	// PersistPlan writes the plan reference; when clearSubscriptions is true every provider
	// subscription id is cleared in the same statement.
	PersistPlan(ctx context.Context, orgID string, planID *string, clearSubscriptions bool) error
}
