package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost-io/tradepost/internal/models"
)

const sessionColumns = `id, user_id, token, device_info, ip_address, user_agent,
	active, created_at, expires_at, last_used_at`

// CreateSession persists a newly issued token so it can be revoked later.
func (s *Store) CreateSession(userID, token, deviceInfo, ipAddress, userAgent string, expiresAt time.Time) (*models.Session, error) {
	now := s.now().UTC()
	session := &models.Session{
		ID:         uuid.New().String(),
		UserID:     userID,
		Token:      token,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Active:     true,
		CreatedAt:  now,
		ExpiresAt:  expiresAt.UTC(),
		LastUsedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, token, device_info, ip_address, user_agent,
			active, created_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.ID, session.UserID, session.Token, session.DeviceInfo,
		session.IPAddress, session.UserAgent, session.Active,
		session.CreatedAt, session.ExpiresAt, session.LastUsedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return session, nil
}

// SessionIsLive reports whether a matching active, non-expired session
// exists for token.
func (s *Store) SessionIsLive(token string) (bool, error) {
	var live bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE token = $1 AND active = TRUE AND expires_at > $2)`,
		token, s.now().UTC(),
	).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("failed to check session liveness: %w", err)
	}
	return live, nil
}

// TouchSession bumps the session's last-used timestamp. Best effort: the
// caller treats a failure as non-fatal.
func (s *Store) TouchSession(token string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET last_used_at = $1 WHERE token = $2`,
		s.now().UTC(), token,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// RevokeSession deactivates the session for token. Idempotent: revoking an
// already-revoked or unknown token is not an error.
func (s *Store) RevokeSession(token string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET active = FALSE WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeUserSessions deactivates every session owned by a user. Used on
// password change so stolen tokens die with the old credential.
func (s *Store) RevokeUserSessions(userID string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET active = FALSE WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// ListUserSessions returns the user's live sessions, newest first.
func (s *Store) ListUserSessions(userID string) ([]*models.Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND active = TRUE AND expires_at > $2
		ORDER BY created_at DESC`,
		userID, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session := &models.Session{}
		err := rows.Scan(
			&session.ID, &session.UserID, &session.Token, &session.DeviceInfo,
			&session.IPAddress, &session.UserAgent, &session.Active,
			&session.CreatedAt, &session.ExpiresAt, &session.LastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteExpiredSessions removes session rows past their expiry. Called from
// the maintenance loop, never inline with a request.
func (s *Store) DeleteExpiredSessions() (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM sessions WHERE expires_at < $1`,
		s.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
