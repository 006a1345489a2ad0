package entitlement

import (
	"context"
	"database/sql"
	"time"

	coupondomain "saas-control-plane/internal/coupon/domain"
	couponrepo "saas-control-plane/internal/coupon/repository"
	"saas-control-plane/internal/db"
	orgdomain "saas-control-plane/internal/organization/domain"
	orgrepo "saas-control-plane/internal/organization/repository"
	plandomain "saas-control-plane/internal/plan/domain"
	planrepo "saas-control-plane/internal/plan/repository"
)

// CouponStore is the coupon ledger access the engine needs.
type CouponStore interface {
	Claim(ctx context.Context, code, orgID, userID string, at time.Time) (*coupondomain.Coupon, error)
	CountValidByOrg(ctx context.Context, orgID string) (int, error)
	ExpireByCodes(ctx context.Context, codes []string) ([]*coupondomain.Coupon, error)
}

// PlanStore is the plan catalog access the engine needs.
type PlanStore interface {
	GetByID(ctx context.Context, id string) (*plandomain.Plan, error)
	FindByRequiredCouponCount(ctx context.Context, count int) ([]*plandomain.Plan, error)
	FindDefault(ctx context.Context) (*plandomain.Plan, error)
}

// OrgStore is the organization access the engine needs. LockOrganization holds the row until the
// unit of work ends so concurrent recalculations of one organization run one after another.
type OrgStore interface {
	LockOrganization(ctx context.Context, id string) (bool, error)
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
	PersistPlan(ctx context.Context, orgID string, planID *string, clearSubscriptions bool) error
}

// Stores groups the repositories one unit of work operates on.
type Stores struct {
	Coupons CouponStore
	Plans   PlanStore
	Orgs    OrgStore
}

// UnitOfWork runs fn against Stores bound to a single transaction. fn's error rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(s Stores) error) error
}

// PostgresUnitOfWork binds the Postgres repositories to a database transaction.
type PostgresUnitOfWork struct {
	conn *sql.DB
}

// NewPostgresUnitOfWork returns a UnitOfWork over conn.
func NewPostgresUnitOfWork(conn *sql.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{conn: conn}
}

// Do runs fn inside db.RunInTx.
func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(s Stores) error) error {
	return db.RunInTx(ctx, u.conn, func(tx db.DBTX) error {
		return fn(PostgresStores(tx))
	})
}

// PostgresStores returns Stores backed by conn, which may be a *sql.DB or a *sql.Tx.
func PostgresStores(conn db.DBTX) Stores {
	return Stores{
		Coupons: couponrepo.NewPostgresRepository(conn),
		Plans:   planrepo.NewPostgresRepository(conn),
		Orgs:    orgrepo.NewPostgresRepository(conn),
	}
}
