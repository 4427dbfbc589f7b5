// Package auth implements the authentication and session lifecycle:
// registration, credential verification, token issuance, the revocable
// session registry, social identity linking, and the request gateway.
package auth

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost-io/tradepost/internal/models"
	"github.com/tradepost-io/tradepost/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is deliberately above the library default; login latency is
// the price of offline-cracking resistance.
const bcryptCost = 12

var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrWeakPassword = errors.New("password does not meet requirements")
	ErrEmailTaken   = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("account is deactivated")
	ErrSessionRevoked     = errors.New("session revoked or expired")
	ErrInvalidRole        = errors.New("invalid role")
)

// UserStore is the persistence surface the service needs for users.
type UserStore interface {
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	GetUserBySocialIdentity(provider, socialID string) (*models.User, error)
	UpdateLastLogin(id string) error
	UpdatePassword(id, passwordHash string) error
	LinkSocialIdentity(id, provider, socialID string, avatar *string) error
	UpdateProfile(id string, upd store.ProfileUpdate) error
}

// SessionStore is the persistence surface for the session registry.
type SessionStore interface {
	CreateSession(userID, token, deviceInfo, ipAddress, userAgent string, expiresAt time.Time) (*models.Session, error)
	SessionIsLive(token string) (bool, error)
	TouchSession(token string) error
	RevokeSession(token string) error
	RevokeUserSessions(userID string) error
	ListUserSessions(userID string) ([]*models.Session, error)
	DeleteExpiredSessions() (int64, error)
}

// SessionMeta carries the request metadata stored alongside an issued token.
type SessionMeta struct {
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

// Service provides the authentication business logic.
type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   *TokenManager
	now      func() time.Time
}

// NewService creates a Service.
func NewService(users UserStore, sessions SessionStore, tokens *TokenManager) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		now:      time.Now,
	}
}

// NormalizeEmail lowercases and trims an email address. Email comparison is
// case-insensitive everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a new password-based user. The email unique constraint
// in the store is the backstop for the pre-check race: a constraint
// violation surfaces as ErrEmailTaken just like a pre-check hit.
func (s *Service) Register(email, password, firstName, lastName string) (*models.User, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !ValidPassword(password) {
		return nil, ErrWeakPassword
	}

	if _, err := s.users.GetUserByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashStr := string(hash)

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: &hashStr,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Active:       true,
	}

	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return user, nil
}

// Authenticate verifies email/password credentials against active users and
// bumps the last-login timestamp on success. All failure modes return
// ErrInvalidCredentials.
func (s *Service) Authenticate(email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Active || !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(user.ID); err != nil {
		log.Printf("[AUTH] failed to update last login for %s: %v", user.ID, err)
	}
	now := s.now()
	user.LastLogin = &now

	return user, nil
}

// IssueSession mints a signed token for the user and registers it in the
// session registry so it can be revoked before its natural expiry.
func (s *Service) IssueSession(user *models.User, meta SessionMeta) (string, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	expiresAt := s.now().Add(s.tokens.Duration())
	if _, err := s.sessions.CreateSession(user.ID, token, meta.DeviceInfo, meta.IPAddress, meta.UserAgent, expiresAt); err != nil {
		return "", fmt.Errorf("failed to register session: %w", err)
	}

	return token, nil
}

// Refresh exchanges a still-valid token for a new one. The old session is
// revoked so a refresh chain never accumulates live tokens.
func (s *Service) Refresh(oldToken string, meta SessionMeta) (string, error) {
	claims, err := s.tokens.ValidateToken(oldToken)
	if err != nil {
		return "", err
	}

	live, err := s.sessions.SessionIsLive(oldToken)
	if err != nil {
		return "", err
	}
	if !live {
		return "", ErrSessionRevoked
	}

	user, err := s.users.GetUserByID(claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	if !user.Active {
		return "", ErrUserInactive
	}

	if err := s.sessions.RevokeSession(oldToken); err != nil {
		return "", err
	}

	return s.IssueSession(user, meta)
}

// Logout revokes the session for token. Idempotent: logging out a missing
// or already-revoked session succeeds.
func (s *Service) Logout(token string) error {
	return s.sessions.RevokeSession(token)
}

// LogoutAll revokes every session the user holds.
func (s *Service) LogoutAll(userID string) error {
	return s.sessions.RevokeUserSessions(userID)
}

// Sessions lists the user's live sessions.
func (s *Service) Sessions(userID string) ([]*models.Session, error) {
	return s.sessions.ListUserSessions(userID)
}

// ValidateAccess is the gateway check for authenticated requests: the token
// must signature-verify, be unexpired, and still be live in the session
// registry. A passing check bumps the session's last-used timestamp as a
// best-effort side effect.
func (s *Service) ValidateAccess(token string) (*TokenClaims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	live, err := s.sessions.SessionIsLive(token)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, ErrSessionRevoked
	}

	if err := s.sessions.TouchSession(token); err != nil {
		log.Printf("[AUTH] failed to touch session: %v", err)
	}

	return claims, nil
}

// GetUser fetches a user by id.
func (s *Service) GetUser(userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// UpdateProfile applies an allow-listed profile update and returns the
// refreshed user.
func (s *Service) UpdateProfile(userID string, upd store.ProfileUpdate) (*models.User, error) {
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, ErrInvalidRole
	}

	if err := s.users.UpdateProfile(userID, upd); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.GetUser(userID)
}

// ChangePassword replaces the user's password and revokes all of their
// sessions, so tokens minted under the old credential stop working.
// Social-only accounts set their first password without a current one.
func (s *Service) ChangePassword(userID, currentPassword, newPassword string) error {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.HasPassword() && !user.CheckPassword(currentPassword) {
		return ErrInvalidCredentials
	}
	if !ValidPassword(newPassword) {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(userID, string(hash)); err != nil {
		return err
	}

	return s.sessions.RevokeUserSessions(userID)
}

// CleanupExpiredSessions removes expired session rows. Called from the
// maintenance loop in main.
func (s *Service) CleanupExpiredSessions() error {
	n, err := s.sessions.DeleteExpiredSessions()
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("[AUTH] removed %d expired sessions", n)
	}
	return nil
}
