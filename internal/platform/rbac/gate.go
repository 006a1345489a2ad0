// Package rbac is the authorization gate: it compares a caller's organization role against the
// minimum an operation declares, and recognizes platform super-admins.
package rbac

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/metrics"
)

// OrgMembershipGetter returns a user's membership in an org, or nil if there is none.
type OrgMembershipGetter interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
}

// Gate authorizes callers against per-operation minimum roles.
type Gate struct {
	memberships OrgMembershipGetter
	superAdmins *SuperAdmins
	audit       audit.AuditLogger
	log         zerolog.Logger
}

// NewGate returns a Gate. superAdmins may be nil (no super-admins); auditLogger may be nil.
func NewGate(memberships OrgMembershipGetter, superAdmins *SuperAdmins, auditLogger audit.AuditLogger, log zerolog.Logger) *Gate {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Gate{
		memberships: memberships,
		superAdmins: superAdmins,
		audit:       auditLogger,
		log:         log.With().Str("component", "rbac").Logger(),
	}
}

// Authorize loads the principal's membership in orgID and checks it against minimum.
// A missing membership and an insufficient role both yield apperr.ErrForbidden. Returns the
// caller's role on success.
func (g *Gate) Authorize(ctx context.Context, p authctx.Principal, orgID string, minimum domain.Role) (domain.Role, error) {
	if p.UserID == "" {
		return "", apperr.ErrUnauthenticated
	}
	if orgID == "" {
		return "", fmt.Errorf("organization id is required: %w", apperr.ErrInvalidArgument)
	}
	m, err := g.memberships.GetMembershipByUserAndOrg(ctx, p.UserID, orgID)
	if err != nil {
		return "", fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		g.deny(ctx, p, orgID, minimum, "")
		return "", fmt.Errorf("not a member of this organization: %w", apperr.ErrForbidden)
	}
	if !m.Role.AtLeast(minimum) {
		g.deny(ctx, p, orgID, minimum, m.Role)
		return m.Role, fmt.Errorf("organization %s role required: %w", minimum, apperr.ErrForbidden)
	}
	return m.Role, nil
}

// Require authorizes the principal carried by ctx.
func (g *Gate) Require(ctx context.Context, orgID string, minimum domain.Role) (authctx.Principal, domain.Role, error) {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok {
		return authctx.Principal{}, "", apperr.ErrUnauthenticated
	}
	role, err := g.Authorize(ctx, p, orgID, minimum)
	return p, role, err
}

// RequireOrSuperAdmin passes super-admins without a membership check and otherwise behaves like Require.
func (g *Gate) RequireOrSuperAdmin(ctx context.Context, orgID string, minimum domain.Role) (authctx.Principal, error) {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok {
		return authctx.Principal{}, apperr.ErrUnauthenticated
	}
	if g.IsSuperAdmin(p) {
		return p, nil
	}
	_, err := g.Authorize(ctx, p, orgID, minimum)
	return p, err
}

// RequireSuperAdmin checks the principal carried by ctx against the super-admin allow-list.
// Organization roles play no part.
func (g *Gate) RequireSuperAdmin(ctx context.Context) (authctx.Principal, error) {
	p, ok := authctx.PrincipalFrom(ctx)
	if !ok {
		return authctx.Principal{}, apperr.ErrUnauthenticated
	}
	if !g.IsSuperAdmin(p) {
		g.deny(ctx, p, "", "super_admin", "")
		return p, fmt.Errorf("super-admin required: %w", apperr.ErrForbidden)
	}
	return p, nil
}

// IsSuperAdmin reports whether p's email is on the allow-list.
func (g *Gate) IsSuperAdmin(p authctx.Principal) bool {
	return g.superAdmins.Contains(p.Email)
}

func (g *Gate) deny(ctx context.Context, p authctx.Principal, orgID string, required, actual domain.Role) {
	metrics.AuthorizationDenials.WithLabelValues(string(required)).Inc()
	g.log.Warn().
		Str("user_id", p.UserID).
		Str("org_id", orgID).
		Str("required_role", string(required)).
		Str("actual_role", string(actual)).
		Msg("authorization denied")
	g.audit.LogEvent(ctx, orgID, p.UserID, audit.ActionAuthzDenied, "organization",
		fmt.Sprintf(`{"required_role":%q,"actual_role":%q}`, required, actual))
}
