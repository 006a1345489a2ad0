package repository

import (
	"context"

	"saas-control-plane/internal/user/domain"
)

// Repository stores user profiles. Emails are stored normalized; lookups return (nil, nil) when
// no user matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail normalizes email before the lookup.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u. A taken email is apperr.ErrConflict.
	Create(ctx context.Context, u *domain.User) error
	UpdateName(ctx context.Context, id, name string) error
}
