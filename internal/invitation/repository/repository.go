package repository

import (
	"context"
	"time"

	"saas-control-plane/internal/invitation/domain"
)

// Repository defines persistence for invitations.
type Repository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByToken(ctx context.Context, token string) (*domain.Invitation, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Invitation, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes invitations whose expiry is at or before now. Returns the count removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
