package repository

import (
	"context"
	"time"

	"saas-control-plane/internal/coupon/domain"
)

// Repository defines persistence for the coupon ledger.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	// CreateMany inserts unused coupons and returns the normalized codes it inserted. Codes that
	// already exist are skipped.
	CreateMany(ctx context.Context, codes []string, createdAt time.Time) ([]string, error)
	// Claim atomically binds an unused, unexpired coupon to orgID. Returns nil when no row qualified.
	Claim(ctx context.Context, code, orgID, userID string, at time.Time) (*domain.Coupon, error)
	// CountValidByOrg counts used, unexpired coupons bound to orgID.
	CountValidByOrg(ctx context.Context, orgID string) (int, error)
	// ExpireByCodes marks every listed, not yet expired coupon as expired and returns the affected rows.
	ExpireByCodes(ctx context.Context, codes []string) ([]*domain.Coupon, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Coupon, error)
}
