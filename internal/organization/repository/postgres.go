package repository

import (
	"context"
	"database/sql"
	"errors"

	"saas-control-plane/internal/db"
	"saas-control-plane/internal/organization/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	var (
		o                                      domain.Org
		planID                                 sql.NullString
		stripeCus, stripeSub, dodoCus, dodoSub sql.NullString
		lsCus, lsSub                           sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, plan_id,
		stripe_customer_id, stripe_subscription_id, dodo_customer_id, dodo_subscription_id,
		lemonsqueezy_customer_id, lemonsqueezy_subscription_id, created_at, updated_at
		FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &planID, &stripeCus, &stripeSub, &dodoCus, &dodoSub, &lsCus, &lsSub, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	o.PlanID = db.StringPtr(planID)
	o.Billing = domain.BillingRefs{
		StripeCustomerID:           db.StringPtr(stripeCus),
		StripeSubscriptionID:       db.StringPtr(stripeSub),
		DodoCustomerID:             db.StringPtr(dodoCus),
		DodoSubscriptionID:         db.StringPtr(dodoSub),
		LemonSqueezyCustomerID:     db.StringPtr(lsCus),
		LemonSqueezySubscriptionID: db.StringPtr(lsSub),
	}
	return &o, nil
}

// CreateOrganization persists the organization to the database. The organization must have ID set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, plan_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.Name, db.NullString(o.PlanID), o.CreatedAt, o.UpdatedAt)
	return err
}

// UpdateOrganization updates the organization's name. Returns an error if the update fails.
func (r *PostgresRepository) UpdateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.ExecContext(ctx, `UPDATE organizations SET name = $1, updated_at = now() WHERE id = $2`, o.Name, o.ID)
	return err
}

// DeleteOrganization removes the organization; memberships, invitations, and sessions follow by cascade.
func (r *PostgresRepository) DeleteOrganization(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	return err
}

// LockOrganization locks the organization row (SELECT ... FOR UPDATE). Only meaningful inside a transaction.
func (r *PostgresRepository) LockOrganization(ctx context.Context, id string) (bool, error) {
	var got string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PersistPlan writes the organization's plan reference and optionally clears subscription ids.
func (r *PostgresRepository) PersistPlan(ctx context.Context, orgID string, planID *string, clearSubscriptions bool) error {
	query := `UPDATE organizations SET plan_id = $1, updated_at = now() WHERE id = $2`
	if clearSubscriptions {
		query = `UPDATE organizations SET plan_id = $1,
			stripe_subscription_id = NULL, dodo_subscription_id = NULL, lemonsqueezy_subscription_id = NULL,
			updated_at = now() WHERE id = $2`
	}
	_, err := r.db.ExecContext(ctx, query, db.NullString(planID), orgID)
	return err
}
