package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the core user entity. Email is the immutable identity; Name is a mutable profile field.
type User struct {
	ID        string
	Email     string
	Name      string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// NormalizeEmail lower-cases and trims an email for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if len(u.Name) > 100 {
		return errors.New("name must be at most 100 characters")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
