package repository

import (
	"context"
	"database/sql"
	"errors"

	"saas-control-plane/internal/db"
	"saas-control-plane/internal/plan/domain"
)

const planColumns = `id, codename, required_coupon_count, is_default, quota_team_members, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a plan repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the plan for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// FindByRequiredCouponCount returns the plans requiring exactly count coupons, oldest first.
func (r *PostgresRepository) FindByRequiredCouponCount(ctx context.Context, count int) ([]*domain.Plan, error) {
	return r.list(ctx, `SELECT `+planColumns+` FROM plans WHERE required_coupon_count = $1 ORDER BY created_at, id`, count)
}

// FindDefault returns the default plan, or nil if none exists.
func (r *PostgresRepository) FindDefault(ctx context.Context) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE is_default LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// List returns the full catalog ordered by creation.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Plan, error) {
	return r.list(ctx, `SELECT `+planColumns+` FROM plans ORDER BY created_at, id`)
}

// Upsert inserts the plan or updates the existing row with the same codename. The plan's ID is
// replaced with the stored id.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.Plan) error {
	return r.db.QueryRowContext(ctx,
		`INSERT INTO plans (id, codename, required_coupon_count, is_default, quota_team_members, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (codename) DO UPDATE SET
			required_coupon_count = EXCLUDED.required_coupon_count,
			is_default = EXCLUDED.is_default,
			quota_team_members = EXCLUDED.quota_team_members
		RETURNING id`,
		p.ID, p.Codename, db.NullInt(p.RequiredCouponCount), p.Default, db.NullInt(p.Quotas.TeamMembers), p.CreatedAt,
	).Scan(&p.ID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Plan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*domain.Plan, error) {
	var (
		p           domain.Plan
		required    sql.NullInt64
		teamMembers sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Codename, &required, &p.Default, &teamMembers, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.RequiredCouponCount = db.IntPtr(required)
	p.Quotas.TeamMembers = db.IntPtr(teamMembers)
	return &p, nil
}
