package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID string
	Email  string
	Token  string
}

// BearerToken extracts the bearer token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// Middleware is the auth gateway. The check is stateful: the token must
// signature-verify AND a live session registry entry must exist, so a
// revoked token is rejected even before its natural expiry.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "no token")
				return
			}

			claims, err := svc.ValidateAccess(token)
			if err != nil {
				switch {
				case errors.Is(err, ErrExpiredToken):
					writeAuthError(w, http.StatusUnauthorized, "token expired")
				case errors.Is(err, ErrSessionRevoked):
					writeAuthError(w, http.StatusForbidden, "invalid or expired session")
				case errors.Is(err, ErrInvalidToken):
					writeAuthError(w, http.StatusUnauthorized, "invalid token")
				default:
					writeAuthError(w, http.StatusInternalServerError, "internal error")
				}
				return
			}

			identity := &Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Token:  token,
			}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok
}

// ContextWithIdentity attaches an identity to ctx. Used by tests and by the
// gateway itself.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
