package models

import "time"

// Session is the server-side record of one issued bearer token. It exists
// so a token can be revoked before its natural expiry: a session is valid
// only while Active is true and ExpiresAt is in the future.
type Session struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Token      string    `json:"-" db:"token"`
	DeviceInfo string    `json:"device_info" db:"device_info"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	UserAgent  string    `json:"user_agent" db:"user_agent"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at" db:"last_used_at"`
}

// IsLive reports whether the session still grants access at instant now.
func (s *Session) IsLive(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}
