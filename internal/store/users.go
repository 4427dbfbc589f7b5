package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tradepost-io/tradepost/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, role,
	social_provider, social_id, avatar, email_verified, profile_setup,
	active, last_login, created_at, updated_at`

// ProfileUpdate carries the fields a user may change on their own profile.
// Nil fields are left untouched. This is the complete allow-list: column
// names never come from request input.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Role      *models.Role
	Avatar    *string
}

// CreateUser inserts a new user record. A unique-constraint violation on
// email or on the social identity pair is returned as ErrConflict.
func (s *Store) CreateUser(user *models.User) error {
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO users (id, email, password_hash, first_name, last_name, role,
			social_provider, social_id, avatar, email_verified, profile_setup,
			active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role,
		user.SocialProvider, user.SocialID, user.Avatar, user.EmailVerified, user.ProfileSetup,
		user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by normalized email.
func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
}

// GetUserBySocialIdentity retrieves a user by its external provider identity.
func (s *Store) GetUserBySocialIdentity(provider, socialID string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE social_provider = $1 AND social_id = $2`,
		provider, socialID,
	))
}

// UpdateLastLogin stamps the user's last successful login.
func (s *Store) UpdateLastLogin(id string) error {
	now := s.now().UTC()
	_, err := s.db.Exec(
		`UPDATE users SET last_login = $1, updated_at = $2 WHERE id = $3`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the user's password hash.
func (s *Store) UpdatePassword(id, passwordHash string) error {
	res, err := s.db.Exec(
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(res)
}

// LinkSocialIdentity attaches an external provider identity (and avatar, if
// the provider supplied one) to an existing user.
func (s *Store) LinkSocialIdentity(id, provider, socialID string, avatar *string) error {
	res, err := s.db.Exec(
		`UPDATE users SET social_provider = $1, social_id = $2,
			avatar = COALESCE($3, avatar), updated_at = $4
		WHERE id = $5`,
		provider, socialID, avatar, s.now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to link social identity: %w", err)
	}
	return requireRow(res)
}

// UpdateProfile applies an allow-listed profile update. Setting a role for
// the first time also marks profile setup complete.
func (s *Store) UpdateProfile(id string, upd ProfileUpdate) error {
	res, err := s.db.Exec(
		`UPDATE users SET
			first_name = COALESCE($1, first_name),
			last_name = COALESCE($2, last_name),
			role = COALESCE($3, role),
			avatar = COALESCE($4, avatar),
			profile_setup = CASE WHEN $5 THEN TRUE ELSE profile_setup END,
			updated_at = $6
		WHERE id = $7`,
		upd.FirstName, upd.LastName, upd.Role, upd.Avatar,
		upd.Role != nil, s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireRow(res)
}

// DeactivateUser soft-deletes a user. The rows stay; the account just stops
// authenticating.
func (s *Store) DeactivateUser(id string) error {
	res, err := s.db.Exec(
		`UPDATE users SET active = FALSE, updated_at = $1 WHERE id = $2`,
		s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	return requireRow(res)
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.SocialProvider,
		&user.SocialID,
		&user.Avatar,
		&user.EmailVerified,
		&user.ProfileSetup,
		&user.Active,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
