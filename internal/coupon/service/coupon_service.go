// Package service exposes coupon redemption, batch expiry, and code generation behind the
// authorization gate.
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/coupon/domain"
	"saas-control-plane/internal/entitlement"
	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
)

// codeAlphabet omits 0/O and 1/I so codes survive being read aloud or retyped.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MaxGenerate bounds a single generation request.
const MaxGenerate = 10000

// CouponRepo is the coupon persistence used outside the engine.
type CouponRepo interface {
	CreateMany(ctx context.Context, codes []string, createdAt time.Time) ([]string, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Coupon, error)
}

// Engine is the entitlement engine surface used here.
type Engine interface {
	Redeem(ctx context.Context, code, orgID, userID string) (*entitlement.Redemption, error)
	ExpireBatch(ctx context.Context, codes []string) (*entitlement.ExpiryReport, error)
}

// Authorizer is the authorization gate.
type Authorizer interface {
	Require(ctx context.Context, orgID string, minimum membershipdomain.Role) (authctx.Principal, membershipdomain.Role, error)
	RequireSuperAdmin(ctx context.Context) (authctx.Principal, error)
}

// Service implements the coupon operations.
type Service struct {
	coupons CouponRepo
	engine  Engine
	gate    Authorizer
	audit   audit.AuditLogger
	log     zerolog.Logger
}

// NewService returns a coupon Service. auditLogger may be nil.
func NewService(coupons CouponRepo, engine Engine, gate Authorizer, auditLogger audit.AuditLogger, log zerolog.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Service{
		coupons: coupons,
		engine:  engine,
		gate:    gate,
		audit:   auditLogger,
		log:     log.With().Str("component", "coupon").Logger(),
	}
}

// Redeem redeems code for orgID. Requires admin.
func (s *Service) Redeem(ctx context.Context, orgID, code string) (*entitlement.Redemption, error) {
	p, _, err := s.gate.Require(ctx, orgID, membershipdomain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return s.engine.Redeem(ctx, code, orgID, p.UserID)
}

// ListByOrg returns the coupons redeemed for orgID, expired ones included. Requires admin.
func (s *Service) ListByOrg(ctx context.Context, orgID string) ([]*domain.Coupon, error) {
	if _, _, err := s.gate.Require(ctx, orgID, membershipdomain.RoleAdmin); err != nil {
		return nil, err
	}
	cs, err := s.coupons.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return cs, nil
}

// ExpireBatch expires codes on behalf of a super-admin.
func (s *Service) ExpireBatch(ctx context.Context, codes []string) (*entitlement.ExpiryReport, error) {
	p, err := s.gate.RequireSuperAdmin(ctx)
	if err != nil {
		return nil, err
	}
	return s.expire(ctx, p.UserID, codes)
}

// ExpireBatchTrusted expires codes without a principal. Used by the operator CLI.
func (s *Service) ExpireBatchTrusted(ctx context.Context, codes []string) (*entitlement.ExpiryReport, error) {
	return s.expire(ctx, "", codes)
}

func (s *Service) expire(ctx context.Context, actorID string, codes []string) (*entitlement.ExpiryReport, error) {
	report, err := s.engine.ExpireBatch(ctx, codes)
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.SentinelOrgID, actorID, audit.ActionCouponsExpire, "coupon",
		fmt.Sprintf(`{"requested":%d,"expired":%d,"organizations":%d,"errors":%d}`,
			len(codes), report.TotalExpired, report.WorkspacesDowngraded, len(report.Errors)))
	return report, nil
}

// Generate creates up to n new coupons named PREFIX-XXXXXXXX and returns the codes that were
// inserted. A generated code that already exists is skipped and never returned.
func (s *Service) Generate(ctx context.Context, prefix string, n int) ([]string, error) {
	if n <= 0 || n > MaxGenerate {
		return nil, fmt.Errorf("count must be between 1 and %d: %w", MaxGenerate, apperr.ErrInvalidArgument)
	}
	prefix = domain.NormalizeCode(prefix)
	codes := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(codes) < n {
		suffix, err := randomCode(8)
		if err != nil {
			return nil, err
		}
		code := suffix
		if prefix != "" {
			code = prefix + "-" + suffix
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	inserted, err := s.coupons.CreateMany(ctx, codes, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create coupons: %w", err)
	}
	if len(inserted) != len(codes) {
		s.log.Warn().Int("requested", len(codes)).Int("inserted", len(inserted)).Msg("some generated coupon codes already existed")
	}
	s.log.Info().Str("prefix", prefix).Int("count", len(inserted)).Msg("coupons generated")
	return inserted, nil
}

func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate coupon code: %w", err)
	}
	var b strings.Builder
	b.Grow(length)
	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
