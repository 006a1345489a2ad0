package domain

import "time"

// Plan is an entitlement tier. RequiredCouponCount selects the plan for organizations holding
// exactly that many valid coupons; Default marks the single fallback plan.
type Plan struct {
	ID                  string
	Codename            string
	RequiredCouponCount *int
	Default             bool
	Quotas              Quotas
	CreatedAt           time.Time
}

// Quotas are the limits a plan grants. A nil quota is unlimited.
type Quotas struct {
	TeamMembers *int
}

// AllowsMembers reports whether an organization with current members may add one more.
func (q Quotas) AllowsMembers(current int) bool {
	if q.TeamMembers == nil {
		return true
	}
	return current < *q.TeamMembers
}
