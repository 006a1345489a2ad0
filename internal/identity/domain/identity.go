package domain

import "time"

// IdentityProvider names how an identity authenticates.
type IdentityProvider string

// IdentityProviderLocal is an email and password identity.
const IdentityProviderLocal IdentityProvider = "local"

// Identity links a user to one login method. Local identities carry a bcrypt hash and use the
// normalized email as ProviderID.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string
	PasswordHash string
	CreatedAt    time.Time
}

// CanUsePassword reports whether the identity accepts password login.
func (i *Identity) CanUsePassword() bool {
	return i != nil && i.Provider == IdentityProviderLocal && i.PasswordHash != ""
}
