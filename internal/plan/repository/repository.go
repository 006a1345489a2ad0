package repository

import (
	"context"

	"saas-control-plane/internal/plan/domain"
)

// Repository defines persistence for the plan catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Plan, error)
	// FindByRequiredCouponCount returns every plan whose required coupon count equals count.
	FindByRequiredCouponCount(ctx context.Context, count int) ([]*domain.Plan, error)
	// FindDefault returns the default plan, or nil if none is marked default.
	FindDefault(ctx context.Context) (*domain.Plan, error)
	List(ctx context.Context) ([]*domain.Plan, error)
	// Upsert inserts or updates the plan identified by codename.
	Upsert(ctx context.Context, p *domain.Plan) error
}
