// Package service creates, reads, and deletes organizations.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/db"
	"saas-control-plane/internal/entitlement"
	membershipdomain "saas-control-plane/internal/membership/domain"
	membershiprepo "saas-control-plane/internal/membership/repository"
	"saas-control-plane/internal/organization/domain"
	orgrepo "saas-control-plane/internal/organization/repository"
	plandomain "saas-control-plane/internal/plan/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	sessionservice "saas-control-plane/internal/session/service"
)

// OrgRepo is the organization persistence used by the service.
type OrgRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error
	DeleteOrganization(ctx context.Context, id string) error
}

// MembershipCreator adds the founding owner.
type MembershipCreator interface {
	CreateMembership(ctx context.Context, m *membershipdomain.Membership) error
}

// SessionSelector records the caller's selected organization.
type SessionSelector interface {
	SetCurrentOrg(ctx context.Context, id, orgID string) error
}

// TxRepos are the repositories bound to one transaction.
type TxRepos struct {
	Orgs        OrgRepo
	Memberships MembershipCreator
	Entitlement entitlement.Stores
}

// UnitOfWork runs fn in one transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(r TxRepos) error) error
}

// PostgresUnitOfWork implements UnitOfWork with db.RunInTx.
type PostgresUnitOfWork struct {
	conn *sql.DB
}

// NewPostgresUnitOfWork returns a UnitOfWork over conn.
func NewPostgresUnitOfWork(conn *sql.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{conn: conn}
}

// Do runs fn inside a transaction.
func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(r TxRepos) error) error {
	return db.RunInTx(ctx, u.conn, func(tx db.DBTX) error {
		return fn(TxRepos{
			Orgs:        orgrepo.NewPostgresRepository(tx),
			Memberships: membershiprepo.NewPostgresRepository(tx),
			Entitlement: entitlement.PostgresStores(tx),
		})
	})
}

// Authorizer is the authorization gate.
type Authorizer interface {
	RequireOrSuperAdmin(ctx context.Context, orgID string, minimum membershipdomain.Role) (authctx.Principal, error)
}

// SessionResolver resolves the caller's selected organization.
type SessionResolver interface {
	Resolve(ctx context.Context, p authctx.Principal) (*sessionservice.SessionContext, error)
}

// Current is the caller's selected organization with its entitlement.
type Current struct {
	Organization *domain.Org
	Role         membershipdomain.Role
	Plan         *plandomain.Plan
	CouponCount  int
}

// Service implements organization lifecycle operations.
type Service struct {
	orgs     OrgRepo
	sessions SessionSelector
	uow      UnitOfWork
	engine   *entitlement.Engine
	resolver SessionResolver
	gate     Authorizer
	log      zerolog.Logger
}

// NewService returns an organization Service.
func NewService(
	orgs OrgRepo,
	sessions SessionSelector,
	uow UnitOfWork,
	engine *entitlement.Engine,
	resolver SessionResolver,
	gate Authorizer,
	log zerolog.Logger,
) *Service {
	return &Service{
		orgs:     orgs,
		sessions: sessions,
		uow:      uow,
		engine:   engine,
		resolver: resolver,
		gate:     gate,
		log:      log.With().Str("component", "organization").Logger(),
	}
}

// Create makes a new organization owned by the caller, derives its initial plan, and selects it
// on the caller's session.
func (s *Service) Create(ctx context.Context, name string) (*domain.Org, error) {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	now := time.Now().UTC()
	org := &domain.Org{ID: uuid.New().String(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := org.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument)
	}
	err := s.uow.Do(ctx, func(r TxRepos) error {
		if err := r.Orgs.CreateOrganization(ctx, org); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		owner := &membershipdomain.Membership{
			ID:        uuid.New().String(),
			UserID:    p.UserID,
			OrgID:     org.ID,
			Role:      membershipdomain.RoleOwner,
			CreatedAt: now,
		}
		if err := r.Memberships.CreateMembership(ctx, owner); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		rc, err := s.engine.RecalculateWithin(ctx, r.Entitlement, org.ID)
		if err != nil {
			return err
		}
		org.PlanID = nil
		if rc.Plan != nil {
			id := rc.Plan.ID
			org.PlanID = &id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.SessionID != "" {
		if err := s.sessions.SetCurrentOrg(ctx, p.SessionID, org.ID); err != nil {
			s.log.Warn().Err(err).Str("org_id", org.ID).Msg("select new organization on session")
		}
	}
	s.log.Info().Str("org_id", org.ID).Str("user_id", p.UserID).Msg("organization created")
	return org, nil
}

// Current returns the caller's selected organization, their role, the plan, and the valid coupon count.
func (s *Service) Current(ctx context.Context) (*Current, error) {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	sc, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	snap, err := s.engine.Current(ctx, sc.OrgID())
	if err != nil {
		return nil, err
	}
	return &Current{
		Organization: sc.Organization,
		Role:         sc.Role(),
		Plan:         snap.Plan,
		CouponCount:  snap.CouponCount,
	}, nil
}

// Delete removes the organization. Owners and super-admins may delete.
func (s *Service) Delete(ctx context.Context, orgID string) error {
	p, err := s.gate.RequireOrSuperAdmin(ctx, orgID, membershipdomain.RoleOwner)
	if err != nil {
		return err
	}
	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}
	if err := s.orgs.DeleteOrganization(ctx, orgID); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	s.log.Info().Str("org_id", orgID).Str("user_id", p.UserID).Msg("organization deleted")
	return nil
}
