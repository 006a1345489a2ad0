package domain

import "time"

// Event types emitted by the control plane.
const (
	EventPlanChanged    = "plan_changed"
	EventCouponRedeemed = "coupon_redeemed"
	EventCouponsExpired = "coupons_expired"
	EventMemberJoined   = "member_joined"
)

// Event is an org-scoped domain event exported through the OTel log pipeline.
type Event struct {
	Type   string
	OrgID  string
	UserID string
	Source string
	// Attributes are flat string key/values attached to the record.
	Attributes map[string]string
	CreatedAt  time.Time
}
