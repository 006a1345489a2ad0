package entitlement

import (
	"context"
	"fmt"

	plandomain "saas-control-plane/internal/plan/domain"
)

// SelectPlan picks the plan for an organization given the plans whose required coupon count matched.
// The earliest-created match wins (ties broken by id); with no match the default plan applies, and
// with no default the organization is planless (nil).
func SelectPlan(matches []*plandomain.Plan, defaultPlan *plandomain.Plan) *plandomain.Plan {
	var best *plandomain.Plan
	for _, p := range matches {
		if p == nil {
			continue
		}
		if best == nil || p.CreatedAt.Before(best.CreatedAt) || (p.CreatedAt.Equal(best.CreatedAt) && p.ID < best.ID) {
			best = p
		}
	}
	if best != nil {
		return best
	}
	return defaultPlan
}

func derivePlan(ctx context.Context, plans PlanStore, count int) (*plandomain.Plan, error) {
	matches, err := plans.FindByRequiredCouponCount(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("find plans for %d coupons: %w", count, err)
	}
	if p := SelectPlan(matches, nil); p != nil {
		return p, nil
	}
	def, err := plans.FindDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("find default plan: %w", err)
	}
	return def, nil
}

func planID(p *plandomain.Plan) *string {
	if p == nil {
		return nil
	}
	id := p.ID
	return &id
}

func planCodename(p *plandomain.Plan) string {
	if p == nil {
		return ""
	}
	return p.Codename
}
