package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"saas-control-plane/internal/coupon/domain"
	"saas-control-plane/internal/db"
)

const couponColumns = `code, used_at, organization_id, used_by_user_id, expired, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a coupon repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByCode returns the coupon for the normalized code, or nil if not found.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c, err := scanCoupon(r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, domain.NormalizeCode(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CreateMany inserts unused coupons and returns the codes actually inserted. A code that already
// exists returns no row and is left out.
func (r *PostgresRepository) CreateMany(ctx context.Context, codes []string, createdAt time.Time) ([]string, error) {
	inserted := make([]string, 0, len(codes))
	for _, code := range codes {
		var got string
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO coupons (code, created_at) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING RETURNING code`,
			domain.NormalizeCode(code), createdAt).Scan(&got)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, got)
	}
	return inserted, nil
}

// Claim binds the coupon to orgID in a single conditional update. A coupon that is absent, already
// used, or expired matches no row and yields (nil, nil).
func (r *PostgresRepository) Claim(ctx context.Context, code, orgID, userID string, at time.Time) (*domain.Coupon, error) {
	c, err := scanCoupon(r.db.QueryRowContext(ctx,
		`UPDATE coupons SET used_at = $2, organization_id = $3, used_by_user_id = $4
		WHERE code = $1 AND used_at IS NULL AND expired = FALSE
		RETURNING `+couponColumns,
		domain.NormalizeCode(code), at, orgID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// CountValidByOrg counts coupons that currently entitle orgID.
func (r *PostgresRepository) CountValidByOrg(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM coupons WHERE organization_id = $1 AND used_at IS NOT NULL AND expired = FALSE`,
		orgID).Scan(&n)
	return n, err
}

// ExpireByCodes expires the listed coupons in one statement and returns the rows it changed.
func (r *PostgresRepository) ExpireByCodes(ctx context.Context, codes []string) ([]*domain.Coupon, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return r.list(ctx,
		`UPDATE coupons SET expired = TRUE WHERE code = ANY($1) AND expired = FALSE RETURNING `+couponColumns,
		codes)
}

// ListByOrg returns the coupons redeemed by orgID, oldest redemption first.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Coupon, error) {
	return r.list(ctx, `SELECT `+couponColumns+` FROM coupons WHERE organization_id = $1 ORDER BY used_at, code`, orgID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCoupon(s scanner) (*domain.Coupon, error) {
	var (
		c           domain.Coupon
		usedAt      sql.NullTime
		orgID, byID sql.NullString
	)
	if err := s.Scan(&c.Code, &usedAt, &orgID, &byID, &c.Expired, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.UsedAt = db.TimePtr(usedAt)
	c.OrganizationID = db.StringPtr(orgID)
	c.UsedByUserID = db.StringPtr(byID)
	return &c, nil
}
