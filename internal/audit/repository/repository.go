package repository

import (
	"context"

	"saas-control-plane/internal/audit/domain"
)

// Repository is the append-only audit store.
type Repository interface {
	// ListByOrg returns one page of the org's events, newest first.
	ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
