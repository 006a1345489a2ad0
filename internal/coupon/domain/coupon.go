package domain

import (
	"strings"
	"time"
)

// Coupon is a single-use redemption code. It is bound to an organization exactly once when
// redeemed and may be expired independently at any time.
type Coupon struct {
	Code           string
	UsedAt         *time.Time
	OrganizationID *string
	UsedByUserID   *string
	Expired        bool
	CreatedAt      time.Time
}

// NormalizeCode returns the canonical (trimmed, upper-case) form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Used reports whether the coupon has been redeemed.
func (c *Coupon) Used() bool {
	return c.UsedAt != nil
}

// CountsFor reports whether the coupon counts toward orgID's entitlement.
func (c *Coupon) CountsFor(orgID string) bool {
	return c.UsedAt != nil && !c.Expired && c.OrganizationID != nil && *c.OrganizationID == orgID
}
