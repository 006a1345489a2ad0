package repository

import (
	"context"

	"saas-control-plane/internal/identity/domain"
)

// Repository stores login identities. Lookups return (nil, nil) when no identity matches.
type Repository interface {
	// GetByUserAndProvider returns the user's identity for provider.
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error)
	// Create inserts i. A second identity of the same provider for one user is apperr.ErrConflict.
	Create(ctx context.Context, i *domain.Identity) error
}
