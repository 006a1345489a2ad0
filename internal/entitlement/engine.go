// Package entitlement derives organization plans from the coupon ledger and owns every write to
// coupons and organization plan references.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	coupondomain "saas-control-plane/internal/coupon/domain"
	plandomain "saas-control-plane/internal/plan/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/metrics"
	"saas-control-plane/internal/telemetry"
	telemetrydomain "saas-control-plane/internal/telemetry/domain"
)

const eventSource = "entitlement"

// ItemErrorKind classifies a per-item batch failure.
type ItemErrorKind string

const (
	KindNotFoundCode         ItemErrorKind = "not_found_code"
	KindRecalculationFailure ItemErrorKind = "recalculation_failure"
)

// ItemError is one non-fatal failure inside a batch.
type ItemError struct {
	Kind    ItemErrorKind `json:"kind"`
	Code    string        `json:"code,omitempty"`
	OrgID   string        `json:"orgId,omitempty"`
	Message string        `json:"message"`
}

// ExpiryReport summarises a batch expiry.
type ExpiryReport struct {
	Message                   string      `json:"message"`
	WorkspacesDowngraded      int         `json:"workspacesDowngraded"`
	TotalExpired              int         `json:"totalExpired"`
	OrganizationsRecalculated []string    `json:"organizationsRecalculated"`
	Errors                    []ItemError `json:"errors"`
}

// Recalculation is the outcome of re-deriving one organization's plan.
type Recalculation struct {
	OrgID          string
	PreviousPlanID *string
	Plan           *plandomain.Plan
	CouponCount    int
	Changed        bool
}

// Redemption is the outcome of a successful coupon redemption.
type Redemption struct {
	Code        string
	Plan        *plandomain.Plan
	CouponCount int
}

// Snapshot is an organization's current entitlement as stored.
type Snapshot struct {
	Plan        *plandomain.Plan
	CouponCount int
}

// Engine implements redemption, plan derivation, recalculation, and batch expiry.
type Engine struct {
	stores      Stores
	uow         UnitOfWork
	emitter     telemetry.EventEmitter
	log         zerolog.Logger
	concurrency int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConcurrency bounds the number of organizations recalculated at once during batch expiry.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine returns an Engine. stores serves non-transactional reads; uow wraps every write.
// A nil emitter discards events.
func NewEngine(stores Stores, uow UnitOfWork, emitter telemetry.EventEmitter, log zerolog.Logger, opts ...Option) *Engine {
	if emitter == nil {
		emitter = telemetry.Nop{}
	}
	e := &Engine{
		stores:      stores,
		uow:         uow,
		emitter:     emitter,
		log:         log.With().Str("component", "entitlement").Logger(),
		concurrency: 4,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DerivePlan returns the plan an organization holding count valid coupons is entitled to, or nil.
func (e *Engine) DerivePlan(ctx context.Context, count int) (*plandomain.Plan, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: coupon count must not be negative", apperr.ErrInvalidArgument)
	}
	return derivePlan(ctx, e.stores.Plans, count)
}

// Current returns the organization's stored plan and its valid coupon count.
func (e *Engine) Current(ctx context.Context, orgID string) (*Snapshot, error) {
	org, err := e.stores.Orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org == nil {
		return nil, apperr.ErrNotFound
	}
	count, err := e.stores.Coupons.CountValidByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("count coupons: %w", err)
	}
	snap := &Snapshot{CouponCount: count}
	if org.PlanID != nil {
		p, err := e.stores.Plans.GetByID(ctx, *org.PlanID)
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		snap.Plan = p
	}
	return snap, nil
}

// Recalculate re-derives orgID's plan from its valid coupon count and persists it in one transaction.
// Calling it again with no ledger change in between writes nothing.
func (e *Engine) Recalculate(ctx context.Context, orgID string) (*Recalculation, error) {
	var rc *Recalculation
	err := e.uow.Do(ctx, func(s Stores) error {
		var err error
		rc, err = recalculate(ctx, s, orgID)
		return err
	})
	if err != nil {
		metrics.Recalculations.WithLabelValues("error").Inc()
		return nil, err
	}
	e.recordRecalculation(ctx, rc)
	return rc, nil
}

// RecalculateWithin recalculates orgID inside a unit of work the caller already holds.
func (e *Engine) RecalculateWithin(ctx context.Context, s Stores, orgID string) (*Recalculation, error) {
	rc, err := recalculate(ctx, s, orgID)
	if err != nil {
		metrics.Recalculations.WithLabelValues("error").Inc()
		return nil, err
	}
	e.recordRecalculation(ctx, rc)
	return rc, nil
}

// recalculate locks the organization before counting. A concurrent claim or expiry for the same
// organization commits first, and the count below then includes it.
func recalculate(ctx context.Context, s Stores, orgID string) (*Recalculation, error) {
	exists, err := s.Orgs.LockOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("lock organization %s: %w", orgID, err)
	}
	if !exists {
		return nil, fmt.Errorf("organization %s: %w", orgID, apperr.ErrNotFound)
	}
	org, err := s.Orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load organization %s: %w", orgID, err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s: %w", orgID, apperr.ErrNotFound)
	}
	count, err := s.Coupons.CountValidByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("count coupons for %s: %w", orgID, err)
	}
	p, err := derivePlan(ctx, s.Plans, count)
	if err != nil {
		return nil, err
	}
	rc := &Recalculation{OrgID: orgID, PreviousPlanID: org.PlanID, Plan: p, CouponCount: count}
	next := planID(p)
	if org.SamePlan(next) {
		return rc, nil
	}
	// A coupon-granted plan replaces any paid subscription. Planless keeps billing references intact.
	if err := s.Orgs.PersistPlan(ctx, orgID, next, p != nil); err != nil {
		return nil, fmt.Errorf("persist plan for %s: %w", orgID, err)
	}
	rc.Changed = true
	return rc, nil
}

func (e *Engine) recordRecalculation(ctx context.Context, rc *Recalculation) {
	if !rc.Changed {
		metrics.Recalculations.WithLabelValues("unchanged").Inc()
		return
	}
	metrics.Recalculations.WithLabelValues("changed").Inc()
	prev := ""
	if rc.PreviousPlanID != nil {
		prev = *rc.PreviousPlanID
	}
	next := ""
	if rc.Plan != nil {
		next = rc.Plan.ID
	}
	e.log.Info().Str("org_id", rc.OrgID).Str("previous_plan_id", prev).Str("plan", planCodename(rc.Plan)).
		Int("coupon_count", rc.CouponCount).Msg("organization plan changed")
	telemetry.EmitAsync(ctx, e.emitter, &telemetrydomain.Event{
		Type:   telemetrydomain.EventPlanChanged,
		OrgID:  rc.OrgID,
		Source: eventSource,
		Attributes: map[string]string{
			"previous_plan_id": prev,
			"plan_id":          next,
			"plan":             planCodename(rc.Plan),
			"coupon_count":     strconv.Itoa(rc.CouponCount),
		},
	}, e.log)
}

// Redeem binds code to orgID and recalculates the organization's plan in the same transaction.
// An absent, used, or expired code yields apperr.ErrInvalidCoupon without saying which.
func (e *Engine) Redeem(ctx context.Context, code, orgID, userID string) (*Redemption, error) {
	code = coupondomain.NormalizeCode(code)
	if code == "" {
		metrics.CouponRedemptions.WithLabelValues("invalid").Inc()
		return nil, apperr.ErrInvalidCoupon
	}
	var rc *Recalculation
	err := e.uow.Do(ctx, func(s Stores) error {
		c, err := s.Coupons.Claim(ctx, code, orgID, userID, e.now())
		if err != nil {
			return fmt.Errorf("claim coupon: %w", err)
		}
		if c == nil {
			return apperr.ErrInvalidCoupon
		}
		rc, err = recalculate(ctx, s, orgID)
		return err
	})
	switch {
	case errors.Is(err, apperr.ErrInvalidCoupon):
		metrics.CouponRedemptions.WithLabelValues("invalid").Inc()
		return nil, err
	case err != nil:
		metrics.CouponRedemptions.WithLabelValues("error").Inc()
		metrics.Recalculations.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.CouponRedemptions.WithLabelValues("redeemed").Inc()
	e.recordRecalculation(ctx, rc)
	telemetry.EmitAsync(ctx, e.emitter, &telemetrydomain.Event{
		Type:   telemetrydomain.EventCouponRedeemed,
		OrgID:  orgID,
		UserID: userID,
		Source: eventSource,
		Attributes: map[string]string{
			"code":         code,
			"coupon_count": strconv.Itoa(rc.CouponCount),
		},
	}, e.log)
	return &Redemption{Code: code, Plan: rc.Plan, CouponCount: rc.CouponCount}, nil
}

// ExpireBatch expires every listed coupon in one statement and then recalculates each affected
// organization once. Unknown or already expired codes and failed recalculations are reported per
// item; they never abort the batch.
func (e *Engine) ExpireBatch(ctx context.Context, codes []string) (*ExpiryReport, error) {
	normalized := normalizeCodes(codes)
	report := &ExpiryReport{OrganizationsRecalculated: []string{}, Errors: []ItemError{}}
	if len(normalized) == 0 {
		report.Message = "no coupon codes supplied"
		return report, nil
	}

	var expired []*coupondomain.Coupon
	err := e.uow.Do(ctx, func(s Stores) error {
		var err error
		expired, err = s.Coupons.ExpireByCodes(ctx, normalized)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("expire coupons: %w", err)
	}
	report.TotalExpired = len(expired)
	metrics.CouponsExpired.Add(float64(len(expired)))

	found := make(map[string]bool, len(expired))
	orgSet := make(map[string]bool)
	for _, c := range expired {
		found[c.Code] = true
		if c.Used() && c.OrganizationID != nil {
			orgSet[*c.OrganizationID] = true
		}
	}
	for _, code := range normalized {
		if !found[code] {
			report.Errors = append(report.Errors, ItemError{
				Kind:    KindNotFoundCode,
				Code:    code,
				Message: "coupon not found or already expired",
			})
		}
	}

	orgIDs := make([]string, 0, len(orgSet))
	for id := range orgSet {
		orgIDs = append(orgIDs, id)
	}
	sort.Strings(orgIDs)

	results := make([]error, len(orgIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, orgID := range orgIDs {
		g.Go(func() error {
			_, err := e.Recalculate(gctx, orgID)
			results[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, orgID := range orgIDs {
		if err := results[i]; err != nil {
			e.log.Error().Err(err).Str("org_id", orgID).Msg("recalculation after coupon expiry failed")
			report.Errors = append(report.Errors, ItemError{
				Kind:    KindRecalculationFailure,
				OrgID:   orgID,
				Message: err.Error(),
			})
			continue
		}
		report.OrganizationsRecalculated = append(report.OrganizationsRecalculated, orgID)
	}
	report.WorkspacesDowngraded = len(report.OrganizationsRecalculated)
	sortItemErrors(report.Errors)
	report.Message = fmt.Sprintf("expired %d coupon(s); recalculated %d of %d organization(s)",
		report.TotalExpired, report.WorkspacesDowngraded, len(orgIDs))

	e.log.Info().Int("requested", len(normalized)).Int("expired", report.TotalExpired).
		Int("organizations", len(orgIDs)).Int("errors", len(report.Errors)).Msg("coupon batch expired")
	if report.TotalExpired > 0 {
		telemetry.EmitAsync(ctx, e.emitter, &telemetrydomain.Event{
			Type:   telemetrydomain.EventCouponsExpired,
			Source: eventSource,
			Attributes: map[string]string{
				"total_expired": strconv.Itoa(report.TotalExpired),
				"organizations": strconv.Itoa(len(orgIDs)),
			},
		}, e.log)
	}
	return report, nil
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = coupondomain.NormalizeCode(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func sortItemErrors(items []ItemError) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.OrgID < b.OrgID
	})
}
