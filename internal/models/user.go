package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role classifies what a user can do on the marketplace. It stays unset
// until the user completes profile setup.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User represents a marketplace account. An account is usable when it has
// a password hash, a linked social identity, or both. Accounts are never
// hard-deleted; Active is flipped off instead.
type User struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	PasswordHash   *string    `json:"-" db:"password_hash"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Role           *Role      `json:"role" db:"role"`
	SocialProvider *string    `json:"social_provider,omitempty" db:"social_provider"`
	SocialID       *string    `json:"-" db:"social_id"`
	Avatar         *string    `json:"avatar,omitempty" db:"avatar"`
	EmailVerified  bool       `json:"email_verified" db:"email_verified"`
	ProfileSetup   bool       `json:"profile_setup" db:"profile_setup"`
	Active         bool       `json:"active" db:"active"`
	LastLogin      *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the account carries a password credential.
// Social-only accounts have none until the user sets one.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// CheckPassword compares a plaintext password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	if !u.HasPassword() {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password))
	return err == nil
}
