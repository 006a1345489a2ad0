package rbac

import "strings"

// SuperAdmins is the platform allow-list of super-admin emails. It is loaded once from configuration
// and is independent of any organization role.
type SuperAdmins struct {
	emails map[string]struct{}
}

// NewSuperAdmins returns an allow-list of the given emails, compared case-insensitively.
func NewSuperAdmins(emails []string) *SuperAdmins {
	s := &SuperAdmins{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			s.emails[e] = struct{}{}
		}
	}
	return s
}

// Contains reports whether email is on the list. A nil list contains nobody.
func (s *SuperAdmins) Contains(email string) bool {
	if s == nil || email == "" {
		return false
	}
	_, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Len returns the number of super-admins.
func (s *SuperAdmins) Len() int {
	if s == nil {
		return 0
	}
	return len(s.emails)
}
