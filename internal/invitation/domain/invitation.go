package domain

import (
	"strings"
	"time"

	membershipdomain "saas-control-plane/internal/membership/domain"
)

// Invitation is a pending offer of membership, consumed exactly once by acceptance.
type Invitation struct {
	ID        string
	OrgID     string
	Email     string
	Role      membershipdomain.Role
	Token     string
	InvitedBy string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the invitation can no longer be accepted at now.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// MatchesEmail reports whether email is the invitee, case-insensitively.
func (i *Invitation) MatchesEmail(email string) bool {
	return strings.EqualFold(strings.TrimSpace(i.Email), strings.TrimSpace(email))
}
