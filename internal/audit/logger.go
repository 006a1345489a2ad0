package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit/domain"
	auditrepo "saas-control-plane/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events that have no org.
const SentinelOrgID = domain.SystemOrgID

// Actions recorded by the services.
const (
	ActionAuthzDenied   = "authz_denied"
	ActionRoleChanged   = "role_changed"
	ActionUserRemoved   = "user_removed"
	ActionUserAdded     = "user_added"
	ActionInvited       = "invited"
	ActionInviteRevoked = "invitation_revoked"
	ActionOrgCreated    = "organization_created"
	ActionOrgDeleted    = "organization_deleted"
	ActionOrgSwitched   = "organization_switched"
	ActionCouponRedeem  = "coupon_redeemed"
	ActionCouponsExpire = "coupons_expired"
	ActionLogin         = "login"
	ActionLoginFailure  = "login_failure"
	ActionLogout        = "logout"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         zerolog.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log zerolog.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log.With().Str("component", "audit").Logger()}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	// The request may already be canceled (e.g. a denied call); the write should still land.
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.log.Warn().Err(err).Str("action", action).Str("resource", resource).Msg("failed to write audit event")
	}
}

// Nop is an AuditLogger that discards events.
type Nop struct{}

// LogEvent does nothing.
func (Nop) LogEvent(context.Context, string, string, string, string, string) {}
