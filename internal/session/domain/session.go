package domain

import "time"

// Session is a server-side login session. CurrentOrgID is the selected organization; it only
// changes through a validated switch or the first-resolution fallback.
type Session struct {
	ID           string
	UserID       string
	CurrentOrgID *string
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	CreatedAt    time.Time
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
