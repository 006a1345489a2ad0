package repository

import (
	"context"
	"time"

	"saas-control-plane/internal/session/domain"
)

// Repository persists sessions. GetByID returns (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Create inserts s with its initial current organization, which may be empty.
	Create(ctx context.Context, s *domain.Session) error
	// Revoke stamps revoked_at. Revoking an already revoked session is a no-op.
	Revoke(ctx context.Context, id string) error
	// SetCurrentOrg writes the session's selected organization. Callers check membership first.
	SetCurrentOrg(ctx context.Context, id, orgID string) error
	// DeleteInactive removes sessions that expired or were revoked before cutoff and returns how many.
	DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error)
}
