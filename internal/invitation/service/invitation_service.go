// Package service creates, lists, revokes, accepts, and sweeps organization invitations.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/db"
	"saas-control-plane/internal/invitation/domain"
	invitationrepo "saas-control-plane/internal/invitation/repository"
	membershipdomain "saas-control-plane/internal/membership/domain"
	membershiprepo "saas-control-plane/internal/membership/repository"
	"saas-control-plane/internal/notification"
	orgdomain "saas-control-plane/internal/organization/domain"
	orgrepo "saas-control-plane/internal/organization/repository"
	plandomain "saas-control-plane/internal/plan/domain"
	planrepo "saas-control-plane/internal/plan/repository"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/metrics"
	"saas-control-plane/internal/security"
	"saas-control-plane/internal/telemetry"
	telemetrydomain "saas-control-plane/internal/telemetry/domain"
	userdomain "saas-control-plane/internal/user/domain"
)

// InvitationRepo is the invitation persistence used by the service.
type InvitationRepo interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByToken(ctx context.Context, token string) (*domain.Invitation, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Invitation, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MembershipRepo is the membership persistence used on acceptance.
type MembershipRepo interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
	CreateMembership(ctx context.Context, m *membershipdomain.Membership) error
	CountByOrg(ctx context.Context, orgID string) (int, error)
}

// OrgRepo loads and locks organizations.
type OrgRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
	LockOrganization(ctx context.Context, id string) (bool, error)
}

// PlanRepo loads the organization's plan for its quotas.
type PlanRepo interface {
	GetByID(ctx context.Context, id string) (*plandomain.Plan, error)
}

// UserRepo finds existing accounts for the invited email.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// TxRepos are the repositories bound to one acceptance transaction.
type TxRepos struct {
	Invitations InvitationRepo
	Memberships MembershipRepo
	Orgs        OrgRepo
	Plans       PlanRepo
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
			Invitations: invitationrepo.NewPostgresRepository(tx),
			Memberships: membershiprepo.NewPostgresRepository(tx),
			Orgs:        orgrepo.NewPostgresRepository(tx),
			Plans:       planrepo.NewPostgresRepository(tx),
		})
	})
}

// Authorizer is the authorization gate.
type Authorizer interface {
	Require(ctx context.Context, orgID string, minimum membershipdomain.Role) (authctx.Principal, membershipdomain.Role, error)
}

// Service implements the invitation lifecycle.
type Service struct {
	repos    TxRepos
	users    UserRepo
	uow      UnitOfWork
	gate     Authorizer
	notifier notification.Notifier
	emitter  telemetry.EventEmitter
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewService returns an invitation Service. repos serves reads outside transactions; notifier and
// emitter may be nil.
func NewService(
	repos TxRepos,
	users UserRepo,
	uow UnitOfWork,
	gate Authorizer,
	notifier notification.Notifier,
	emitter telemetry.EventEmitter,
	ttl time.Duration,
	log zerolog.Logger,
) *Service {
	if emitter == nil {
		emitter = telemetry.Nop{}
	}
	return &Service{
		repos:    repos,
		users:    users,
		uow:      uow,
		gate:     gate,
		notifier: notifier,
		emitter:  emitter,
		ttl:      ttl,
		log:      log.With().Str("component", "invitation").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create invites email to orgID with role. Requires admin. The raw token only leaves the process in
// the invitation mail; the store keeps its hash.
func (s *Service) Create(ctx context.Context, orgID, email string, role membershipdomain.Role) (*domain.Invitation, error) {
	p, _, err := s.gate.Require(ctx, orgID, membershipdomain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	email = userdomain.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("invalid email: %w", apperr.ErrInvalidArgument)
	}
	if role != membershipdomain.RoleAdmin && role != membershipdomain.RoleUser {
		return nil, fmt.Errorf("invitations grant admin or user: %w", apperr.ErrInvalidArgument)
	}
	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("look up invitee: %w", err)
	} else if existing != nil {
		m, err := s.repos.Memberships.GetMembershipByUserAndOrg(ctx, existing.ID, orgID)
		if err != nil {
			return nil, fmt.Errorf("look up membership: %w", err)
		}
		if m != nil {
			return nil, fmt.Errorf("already a member: %w", apperr.ErrConflict)
		}
	}
	org, err := s.repos.Orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}

	token, err := security.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	now := s.now()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Email:     email,
		Role:      role,
		Token:     security.HashOpaqueToken(token),
		InvitedBy: p.UserID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repos.Invitations.Create(ctx, inv); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		err := s.notifier.Invited(ctx, notification.Invite{
			Email:       email,
			OrgName:     org.Name,
			InviterName: p.Email,
			Role:        role,
			Token:       token,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("org_id", orgID).Str("invitation_id", inv.ID).Msg("invitation notification failed")
		}
	}
	s.log.Info().Str("org_id", orgID).Str("invitation_id", inv.ID).Str("role", string(role)).Msg("invitation created")
	return inv, nil
}

// List returns the organization's pending invitations. Any member may list.
func (s *Service) List(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	if _, _, err := s.gate.Require(ctx, orgID, membershipdomain.RoleUser); err != nil {
		return nil, err
	}
	invs, err := s.repos.Invitations.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invs, nil
}

// Revoke deletes a pending invitation. Requires admin.
func (s *Service) Revoke(ctx context.Context, orgID, invitationID string) error {
	if _, _, err := s.gate.Require(ctx, orgID, membershipdomain.RoleAdmin); err != nil {
		return err
	}
	inv, err := s.repos.Invitations.GetByID(ctx, invitationID)
	if err != nil {
		return fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil || inv.OrgID != orgID {
		return fmt.Errorf("invitation: %w", apperr.ErrNotFound)
	}
	if err := s.repos.Invitations.Delete(ctx, inv.ID); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

// Accept turns the invitation identified by rawToken into a membership for the caller. The
// invitation is consumed either way once it is found to be expired or the plan's member quota is
// full; in the latter case the caller gets apperr.ErrQuotaExceeded.
func (s *Service) Accept(ctx context.Context, rawToken string) (*membershipdomain.Membership, error) {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	if rawToken == "" {
		return nil, fmt.Errorf("invitation: %w", apperr.ErrNotFound)
	}
	hash := security.HashOpaqueToken(rawToken)

	var created *membershipdomain.Membership
	// outcome is a rejection that still commits, so the consumed invitation stays deleted.
	var outcome error
	err := s.uow.Do(ctx, func(r TxRepos) error {
		inv, err := r.Invitations.GetByToken(ctx, hash)
		if err != nil {
			return fmt.Errorf("load invitation: %w", err)
		}
		if inv == nil {
			return fmt.Errorf("invitation: %w", apperr.ErrNotFound)
		}
		if inv.Expired(s.now()) {
			outcome = fmt.Errorf("invitation expired: %w", apperr.ErrNotFound)
			return r.Invitations.Delete(ctx, inv.ID)
		}
		if !inv.MatchesEmail(p.Email) {
			return fmt.Errorf("invitation was sent to a different email: %w", apperr.ErrForbidden)
		}
		exists, err := r.Orgs.LockOrganization(ctx, inv.OrgID)
		if err != nil {
			return fmt.Errorf("lock organization: %w", err)
		}
		if !exists {
			return fmt.Errorf("organization: %w", apperr.ErrNotFound)
		}
		existing, err := r.Memberships.GetMembershipByUserAndOrg(ctx, p.UserID, inv.OrgID)
		if err != nil {
			return fmt.Errorf("look up membership: %w", err)
		}
		if existing != nil {
			outcome = fmt.Errorf("already a member: %w", apperr.ErrConflict)
			return r.Invitations.Delete(ctx, inv.ID)
		}
		quota, err := memberQuota(ctx, r, inv.OrgID)
		if err != nil {
			return err
		}
		count, err := r.Memberships.CountByOrg(ctx, inv.OrgID)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if !quota.AllowsMembers(count) {
			outcome = fmt.Errorf("member quota full: %w", apperr.ErrQuotaExceeded)
			return r.Invitations.Delete(ctx, inv.ID)
		}
		m := &membershipdomain.Membership{
			ID:        uuid.New().String(),
			UserID:    p.UserID,
			OrgID:     inv.OrgID,
			Role:      inv.Role,
			CreatedAt: s.now(),
		}
		if err := r.Memberships.CreateMembership(ctx, m); err != nil {
			return fmt.Errorf("create membership: %w", err)
		}
		if err := r.Invitations.Delete(ctx, inv.ID); err != nil {
			return fmt.Errorf("consume invitation: %w", err)
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		s.log.Info().Err(outcome).Str("user_id", p.UserID).Msg("invitation rejected and consumed")
		return nil, outcome
	}
	s.log.Info().Str("org_id", created.OrgID).Str("user_id", p.UserID).Str("role", string(created.Role)).Msg("invitation accepted")
	telemetry.EmitAsync(ctx, s.emitter, &telemetrydomain.Event{
		Type:       telemetrydomain.EventMemberJoined,
		OrgID:      created.OrgID,
		UserID:     p.UserID,
		Source:     "invitation",
		Attributes: map[string]string{"role": string(created.Role)},
	}, s.log)
	return created, nil
}

func memberQuota(ctx context.Context, r TxRepos, orgID string) (plandomain.Quotas, error) {
	org, err := r.Orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return plandomain.Quotas{}, fmt.Errorf("load organization: %w", err)
	}
	if org == nil || org.PlanID == nil {
		return plandomain.Quotas{}, nil
	}
	plan, err := r.Plans.GetByID(ctx, *org.PlanID)
	if err != nil {
		return plandomain.Quotas{}, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return plandomain.Quotas{}, nil
	}
	return plan.Quotas, nil
}

// Sweep deletes every expired invitation and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repos.Invitations.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep invitations: %w", err)
	}
	metrics.SweepRemoved.WithLabelValues("invitations").Add(float64(n))
	if n > 0 {
		s.log.Info().Int64("removed", n).Msg("expired invitations swept")
	}
	return n, nil
}
