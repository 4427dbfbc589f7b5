package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tradepost-io/tradepost/internal/auth"
	"github.com/tradepost-io/tradepost/internal/models"
)

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// RegisterHandler handles POST /auth/register.
func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	user, err := a.svc.Register(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	token, err := a.svc.IssueSession(user, sessionMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

// LoginHandler handles POST /auth/login.
func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		// A malformed login still gets the uniform credentials error so
		// the response shape cannot be used to probe for accounts.
		respondError(w, http.StatusUnauthorized, "invalid_credentials", auth.ErrInvalidCredentials.Error())
		return
	}

	user, err := a.svc.Authenticate(req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	token, err := a.svc.IssueSession(user, sessionMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

// RefreshHandler handles POST /auth/refresh. The presented token must still
// verify and its session must still be live; the old session is revoked
// when the new token is minted.
func (a *API) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	newToken, err := a.svc.Refresh(token, sessionMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, tokenResponse{Token: newToken})
}

// LogoutHandler handles POST /auth/logout. Idempotent: revoking a missing
// or already-revoked session still returns 200.
func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	if err := a.svc.Logout(token); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// LogoutAllHandler handles POST /auth/logout-all.
func (a *API) LogoutAllHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	if err := a.svc.LogoutAll(identity.UserID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// SessionsHandler handles GET /auth/sessions: the caller's live sessions
// across devices.
func (a *API) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid_token", "no token")
		return
	}

	sessions, err := a.svc.Sessions(identity.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

const oauthStateCookie = "oauth_state"

// OAuthStartHandler handles GET /auth/{provider}: redirects to the
// provider's consent page with a nonce bound to this browser.
func (a *API) OAuthStartHandler(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.providers[chi.URLParam(r, "provider")]
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "unknown provider")
		return
	}

	state, err := randomState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.LoginURL(state), http.StatusFound)
}

// OAuthCallbackHandler handles GET /auth/{provider}/callback. Success and
// failure both redirect back to the app, never render here.
func (a *API) OAuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.providers[chi.URLParam(r, "provider")]
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "unknown provider")
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		a.redirectAuthError(w, r, "state_mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		a.redirectAuthError(w, r, "missing_code")
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("[API] oauth exchange failed for %s: %v", provider.Name(), err)
		a.redirectAuthError(w, r, "exchange_failed")
		return
	}

	user, err := a.svc.ResolveProfile(provider.Name(), profile)
	if err != nil {
		log.Printf("[API] profile resolution failed for %s: %v", provider.Name(), err)
		a.redirectAuthError(w, r, "resolution_failed")
		return
	}

	token, err := a.svc.IssueSession(user, sessionMeta(r))
	if err != nil {
		log.Printf("[API] session issuance failed: %v", err)
		a.redirectAuthError(w, r, "session_failed")
		return
	}

	http.Redirect(w, r, a.cfg.FrontendURL+"/auth/callback?token="+token, http.StatusFound)
}

func (a *API) redirectAuthError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, a.cfg.FrontendURL+"/auth/error?reason="+reason, http.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
