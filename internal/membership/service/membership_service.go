// Package service lists organization members and applies role changes and removals.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/notification"
	orgdomain "saas-control-plane/internal/organization/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/metrics"
	"saas-control-plane/internal/policy/engine"
	userdomain "saas-control-plane/internal/user/domain"
)

// MembershipRepo is the membership persistence used by the service.
type MembershipRepo interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error
	UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error)
}

// UserRepo loads member profiles.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// OrgRepo loads organization names for notifications.
type OrgRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
}

// Authorizer is the authorization gate.
type Authorizer interface {
	Require(ctx context.Context, orgID string, minimum domain.Role) (authctx.Principal, domain.Role, error)
}

// Member is a membership joined with the member's profile.
type Member struct {
	Membership *domain.Membership
	Email      string
	Name       string
}

// Service implements member listing, role change, and removal.
type Service struct {
	memberships MembershipRepo
	users       UserRepo
	orgs        OrgRepo
	gate        Authorizer
	policy      engine.Evaluator
	notifier    notification.Notifier
	audit       audit.AuditLogger
	log         zerolog.Logger
}

// NewService returns a membership Service. notifier and auditLogger may be nil.
func NewService(
	memberships MembershipRepo,
	users UserRepo,
	orgs OrgRepo,
	gate Authorizer,
	policy engine.Evaluator,
	notifier notification.Notifier,
	auditLogger audit.AuditLogger,
	log zerolog.Logger,
) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Service{
		memberships: memberships,
		users:       users,
		orgs:        orgs,
		gate:        gate,
		policy:      policy,
		notifier:    notifier,
		audit:       auditLogger,
		log:         log.With().Str("component", "membership").Logger(),
	}
}

// List returns the organization's members. Any member may list.
func (s *Service) List(ctx context.Context, orgID string) ([]Member, error) {
	if _, _, err := s.gate.Require(ctx, orgID, domain.RoleUser); err != nil {
		return nil, err
	}
	ms, err := s.memberships.ListMembershipsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]Member, 0, len(ms))
	for _, m := range ms {
		member := Member{Membership: m}
		u, err := s.users.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("load member profile: %w", err)
		}
		if u != nil {
			member.Email, member.Name = u.Email, u.Name
		}
		out = append(out, member)
	}
	return out, nil
}

// UpdateRole changes targetUserID's role. Requires admin and passes the member-mutation policy:
// nobody changes their own role or the owner's, and nobody is promoted to owner.
func (s *Service) UpdateRole(ctx context.Context, orgID, targetUserID string, newRole domain.Role) (*domain.Membership, error) {
	if !newRole.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", newRole, apperr.ErrInvalidArgument)
	}
	p, actorRole, err := s.gate.Require(ctx, orgID, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	target, err := s.loadTarget(ctx, orgID, targetUserID)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, orgID, engine.MemberMutation{
		Action:     engine.ActionChangeRole,
		ActorID:    p.UserID,
		ActorRole:  actorRole,
		TargetID:   target.UserID,
		TargetRole: target.Role,
		NewRole:    newRole,
	}); err != nil {
		return nil, err
	}
	if target.Role == newRole {
		return target, nil
	}
	updated, err := s.memberships.UpdateRole(ctx, targetUserID, orgID, newRole)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("member: %w", apperr.ErrNotFound)
	}
	s.log.Info().Str("org_id", orgID).Str("user_id", p.UserID).Str("target_user_id", targetUserID).
		Str("old_role", string(target.Role)).Str("new_role", string(newRole)).Msg("member role changed")

	if u, org := s.notifyTarget(ctx, orgID, targetUserID); u != nil && s.notifier != nil {
		err := s.notifier.RoleChanged(ctx, notification.RoleChange{
			Email:     u.Email,
			Name:      u.Name,
			OrgName:   org,
			OldRole:   target.Role,
			NewRole:   newRole,
			ChangedBy: p.Email,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("org_id", orgID).Str("target_user_id", targetUserID).Msg("role change notification failed")
		}
	}
	return updated, nil
}

// RemoveMember deletes targetUserID's membership. Requires admin and passes the member-mutation
// policy: nobody removes themselves or the owner.
func (s *Service) RemoveMember(ctx context.Context, orgID, targetUserID string) error {
	p, actorRole, err := s.gate.Require(ctx, orgID, domain.RoleAdmin)
	if err != nil {
		return err
	}
	target, err := s.loadTarget(ctx, orgID, targetUserID)
	if err != nil {
		return err
	}
	if err := s.check(ctx, orgID, engine.MemberMutation{
		Action:     engine.ActionRemove,
		ActorID:    p.UserID,
		ActorRole:  actorRole,
		TargetID:   target.UserID,
		TargetRole: target.Role,
	}); err != nil {
		return err
	}
	// Profile is read before the delete so the notice can still be addressed.
	u, org := s.notifyTarget(ctx, orgID, targetUserID)
	if err := s.memberships.DeleteByUserAndOrg(ctx, targetUserID, orgID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.log.Info().Str("org_id", orgID).Str("user_id", p.UserID).Str("target_user_id", targetUserID).Msg("member removed")

	if u != nil && s.notifier != nil {
		err := s.notifier.AccessRevoked(ctx, notification.AccessRevocation{
			Email:     u.Email,
			Name:      u.Name,
			OrgName:   org,
			RemovedBy: p.Email,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("org_id", orgID).Str("target_user_id", targetUserID).Msg("access revoked notification failed")
		}
	}
	return nil
}

func (s *Service) loadTarget(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", apperr.ErrInvalidArgument)
	}
	m, err := s.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("member: %w", apperr.ErrNotFound)
	}
	return m, nil
}

// check runs the member-mutation policy. An evaluation error denies.
func (s *Service) check(ctx context.Context, orgID string, m engine.MemberMutation) error {
	d, err := s.policy.EvaluateMemberMutation(ctx, m)
	if err != nil {
		s.log.Error().Err(err).Str("org_id", orgID).Msg("member mutation policy failed; denying")
		return fmt.Errorf("policy evaluation failed: %w", apperr.ErrForbidden)
	}
	if d.Allowed {
		return nil
	}
	metrics.AuthorizationDenials.WithLabelValues("member_policy").Inc()
	s.log.Warn().
		Str("user_id", m.ActorID).
		Str("org_id", orgID).
		Str("target_user_id", m.TargetID).
		Str("action", string(m.Action)).
		Strs("reasons", d.Reasons).
		Msg("member mutation denied")
	s.audit.LogEvent(ctx, orgID, m.ActorID, audit.ActionAuthzDenied, "user",
		fmt.Sprintf(`{"action":%q,"target_user_id":%q}`, m.Action, m.TargetID))
	return fmt.Errorf("%s: %w", strings.Join(d.Reasons, "; "), apperr.ErrForbidden)
}

// notifyTarget loads what a notification needs. Lookup failures only cost the notification.
func (s *Service) notifyTarget(ctx context.Context, orgID, userID string) (*userdomain.User, string) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("load member for notification")
		}
		return nil, ""
	}
	name := orgID
	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		s.log.Warn().Err(err).Str("org_id", orgID).Msg("load organization for notification")
	} else if org != nil {
		name = org.Name
	}
	return u, name
}
