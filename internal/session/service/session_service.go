// Package service resolves the per-request session context and switches the selected organization.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	membershipdomain "saas-control-plane/internal/membership/domain"
	orgdomain "saas-control-plane/internal/organization/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	sessiondomain "saas-control-plane/internal/session/domain"
	userdomain "saas-control-plane/internal/user/domain"
)

// SessionRepo is the minimal session repository needed here.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	SetCurrentOrg(ctx context.Context, id, orgID string) error
}

// UserRepo is the minimal user repository needed here.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// MembershipRepo is the minimal membership repository needed here.
type MembershipRepo interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error)
}

// OrgRepo is the minimal organization repository needed here.
type OrgRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
}

// SessionContext is the fully resolved caller for one request. All fields are loaded by Resolve;
// accessors do no I/O.
type SessionContext struct {
	Principal    authctx.Principal
	Session      *sessiondomain.Session
	User         *userdomain.User
	Organization *orgdomain.Org
	Membership   *membershipdomain.Membership
}

// OrgID returns the selected organization id.
func (c *SessionContext) OrgID() string {
	return c.Organization.ID
}

// Role returns the caller's role in the selected organization.
func (c *SessionContext) Role() membershipdomain.Role {
	return c.Membership.Role
}

// Resolver builds SessionContexts from authenticated principals.
type Resolver struct {
	sessions    SessionRepo
	users       UserRepo
	memberships MembershipRepo
	orgs        OrgRepo
	log         zerolog.Logger
	now         func() time.Time
}

// NewResolver returns a Resolver over the given repositories.
func NewResolver(sessions SessionRepo, users UserRepo, memberships MembershipRepo, orgs OrgRepo, log zerolog.Logger) *Resolver {
	return &Resolver{
		sessions:    sessions,
		users:       users,
		memberships: memberships,
		orgs:        orgs,
		log:         log.With().Str("component", "session").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate checks that p carries a live session belonging to an active user.
// Any failure is apperr.ErrUnauthenticated.
func (r *Resolver) Authenticate(ctx context.Context, p authctx.Principal) (*sessiondomain.Session, *userdomain.User, error) {
	if p.UserID == "" || p.SessionID == "" {
		return nil, nil, apperr.ErrUnauthenticated
	}
	sess, err := r.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil || sess.UserID != p.UserID || !sess.Active(r.now()) {
		return nil, nil, apperr.ErrUnauthenticated
	}
	user, err := r.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, nil, apperr.ErrUnauthenticated
	}
	return sess, user, nil
}

// Resolve authenticates p and loads the selected organization and membership. When the session has
// no usable selection the user's earliest membership is selected and saved on the session; a user
// without memberships gets apperr.ErrNoOrganizationSelected.
func (r *Resolver) Resolve(ctx context.Context, p authctx.Principal) (*SessionContext, error) {
	sess, user, err := r.Authenticate(ctx, p)
	if err != nil {
		return nil, err
	}
	sc := &SessionContext{Principal: p, Session: sess, User: user}

	if sess.CurrentOrgID != nil {
		org, m, err := r.loadSelection(ctx, user.ID, *sess.CurrentOrgID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			sc.Organization, sc.Membership = org, m
			return sc, nil
		}
	}

	memberships, err := r.memberships.ListMembershipsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	for _, candidate := range memberships {
		org, err := r.orgs.GetOrganizationByID(ctx, candidate.OrgID)
		if err != nil {
			return nil, fmt.Errorf("load organization: %w", err)
		}
		if org == nil {
			continue
		}
		sc.Organization, sc.Membership = org, candidate
		if err := r.persistSelection(ctx, sess, org.ID); err != nil {
			return nil, err
		}
		return sc, nil
	}
	return nil, apperr.ErrNoOrganizationSelected
}

// loadSelection returns the org and membership for a stored selection, or nil membership when the
// selection is stale.
func (r *Resolver) loadSelection(ctx context.Context, userID, orgID string) (*orgdomain.Org, *membershipdomain.Membership, error) {
	m, err := r.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("load membership: %w", err)
	}
	if m == nil {
		return nil, nil, nil
	}
	org, err := r.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, nil, nil
	}
	return org, m, nil
}

func (r *Resolver) persistSelection(ctx context.Context, sess *sessiondomain.Session, orgID string) error {
	if sess.CurrentOrgID != nil && *sess.CurrentOrgID == orgID {
		return nil
	}
	if err := r.sessions.SetCurrentOrg(ctx, sess.ID, orgID); err != nil {
		return fmt.Errorf("save selected organization: %w", err)
	}
	sess.CurrentOrgID = &orgID
	r.log.Debug().Str("session_id", sess.ID).Str("org_id", orgID).Msg("selected organization")
	return nil
}

// Switch changes the session's selected organization to orgID after re-verifying membership.
// A non-member gets apperr.ErrNotAMember and the session is left unchanged.
func (r *Resolver) Switch(ctx context.Context, p authctx.Principal, orgID string) (*SessionContext, error) {
	if orgID == "" {
		return nil, fmt.Errorf("organization id is required: %w", apperr.ErrInvalidArgument)
	}
	sess, user, err := r.Authenticate(ctx, p)
	if err != nil {
		return nil, err
	}
	org, m, err := r.loadSelection(ctx, user.ID, orgID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		r.log.Warn().Str("user_id", user.ID).Str("org_id", orgID).Msg("organization switch rejected")
		return nil, apperr.ErrNotAMember
	}
	if err := r.persistSelection(ctx, sess, orgID); err != nil {
		return nil, err
	}
	return &SessionContext{Principal: p, Session: sess, User: user, Organization: org, Membership: m}, nil
}
