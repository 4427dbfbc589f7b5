package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenClaims represents the claims in a bearer token.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies signed bearer tokens. Tokens are
// self-describing: verification needs no store lookup, only the secret.
type TokenManager struct {
	secretKey []byte
	duration  time.Duration
	now       func() time.Time
}

// NewTokenManager creates a TokenManager signing with secretKey. Tokens
// expire duration after issuance.
func NewTokenManager(secretKey string, duration time.Duration) *TokenManager {
	return &TokenManager{
		secretKey: []byte(secretKey),
		duration:  duration,
		now:       time.Now,
	}
}

// Duration returns the validity window tokens are minted with.
func (tm *TokenManager) Duration() time.Duration {
	return tm.duration
}

// GenerateToken creates a new signed token carrying the user identity.
func (tm *TokenManager) GenerateToken(userID, email string) (string, error) {
	now := tm.now()
	claims := TokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti keeps tokens minted within the same second distinct,
			// so each one maps to its own session registry entry.
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken verifies a token's signature and validity window and
// returns its claims.
func (tm *TokenManager) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tm.secretKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return tm.now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
