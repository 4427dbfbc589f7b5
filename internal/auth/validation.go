package auth

import "regexp"

const (
	// MinPasswordLen is the minimum accepted password length.
	MinPasswordLen = 8
	// MaxPasswordLen matches the bcrypt input limit.
	MaxPasswordLen = 72
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail checks if an email has a plausible format.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) < 255
}

// ValidPassword checks if a password meets the length requirements.
func ValidPassword(password string) bool {
	return len(password) >= MinPasswordLen && len(password) <= MaxPasswordLen
}
