package domain

import "time"

// SystemOrgID is stored as the org of events that belong to no organization, such as a batch
// coupon expiry run by a super-admin or the admin CLI.
const SystemOrgID = "_system"

// AuditLog is one recorded action. UserID is empty for trusted (CLI) actors; Metadata is a JSON
// object or empty.
type AuditLog struct {
	ID        string
	OrgID     string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
