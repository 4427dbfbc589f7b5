package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tradepost-io/tradepost/internal/models"
	"github.com/tradepost-io/tradepost/internal/store"
)

// ErrNoEmail is returned when a provider profile carries no usable email.
var ErrNoEmail = errors.New("provider profile has no email")

// Profile is the identity record an OAuth provider hands back after the
// user consents.
type Profile struct {
	ID     string
	Emails []string
	Name   string
	Photos []string
}

// PrimaryEmail returns the profile's first email, normalized.
func (p *Profile) PrimaryEmail() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return NormalizeEmail(p.Emails[0])
}

// SplitName derives first and last name from the provider display name.
func (p *Profile) SplitName() (string, string) {
	parts := strings.Fields(p.Name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// OAuthProvider abstracts one external identity provider in the redirect
// flow: build the consent URL, then exchange the callback code for a
// profile.
type OAuthProvider interface {
	Name() string
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// ResolveProfile maps an external provider profile to a local user,
// creating or linking accounts as needed. Idempotent: repeated calls with
// the same profile resolve to the same user.
//
// An email match is trusted as proof of identity for linking. That is a
// deliberate simplification; it is only safe with providers that verify
// email ownership before releasing the address.
func (s *Service) ResolveProfile(provider string, profile *Profile) (*models.User, error) {
	user, err := s.users.GetUserBySocialIdentity(provider, profile.ID)
	if err == nil {
		if !user.Active {
			return nil, ErrUserInactive
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	email := profile.PrimaryEmail()
	if email == "" {
		return nil, ErrNoEmail
	}

	user, err = s.users.GetUserByEmail(email)
	if err == nil {
		if !user.Active {
			return nil, ErrUserInactive
		}
		if err := s.users.LinkSocialIdentity(user.ID, provider, profile.ID, firstPhoto(profile)); err != nil {
			return nil, err
		}
		return s.users.GetUserByID(user.ID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	firstName, lastName := profile.SplitName()
	socialID := profile.ID
	newUser := &models.User{
		ID:             uuid.New().String(),
		Email:          email,
		FirstName:      firstName,
		LastName:       lastName,
		SocialProvider: &provider,
		SocialID:       &socialID,
		Avatar:         firstPhoto(profile),
		EmailVerified:  true,
		Active:         true,
	}

	if err := s.users.CreateUser(newUser); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent callback for the same
			// profile; the winner's row is the one we want.
			return s.users.GetUserBySocialIdentity(provider, profile.ID)
		}
		return nil, err
	}

	return newUser, nil
}

func firstPhoto(p *Profile) *string {
	if len(p.Photos) == 0 {
		return nil
	}
	return &p.Photos[0]
}

// --- Google ---

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleConfig configures the Google OAuth provider. The endpoint URLs are
// overridable for tests.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleProvider implements OAuthProvider for Google OAuth 2.0.
type GoogleProvider struct {
	config GoogleConfig
}

// NewGoogleProvider creates a GoogleProvider.
func NewGoogleProvider(config GoogleConfig) *GoogleProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	return &GoogleProvider{config: config}
}

func (p *GoogleProvider) Name() string { return "google" }

// LoginURL builds the Google consent URL.
func (p *GoogleProvider) LoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange trades the authorization code for an access token and fetches
// the user's profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	accessToken, err := exchangeCode(ctx, p.config.TokenURL, url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	})
	if err != nil {
		return nil, err
	}

	var info googleUserInfo
	if err := fetchJSON(ctx, p.config.UserInfoURL, accessToken, &info); err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("empty sub in google user info")
	}

	profile := &Profile{ID: info.Sub, Name: info.Name}
	if info.Email != "" {
		profile.Emails = []string{info.Email}
	}
	if info.Picture != "" {
		profile.Photos = []string{info.Picture}
	}
	return profile, nil
}

// --- GitHub ---

const (
	defaultGitHubAuthURL   = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL  = "https://github.com/login/oauth/access_token"
	defaultGitHubUserURL   = "https://api.github.com/user"
	defaultGitHubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubConfig configures the GitHub OAuth provider.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string
}

// GitHubProvider implements OAuthProvider for GitHub.
type GitHubProvider struct {
	config GitHubConfig
}

// NewGitHubProvider creates a GitHubProvider.
func NewGitHubProvider(config GitHubConfig) *GitHubProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.UserURL == "" {
		config.UserURL = defaultGitHubUserURL
	}
	if config.EmailsURL == "" {
		config.EmailsURL = defaultGitHubEmailsURL
	}
	return &GitHubProvider{config: config}
}

func (p *GitHubProvider) Name() string { return "github" }

// LoginURL builds the GitHub consent URL.
func (p *GitHubProvider) LoginURL(state string) string {
	params := url.Values{
		"client_id":    {p.config.ClientID},
		"redirect_uri": {p.config.RedirectURL},
		"scope":        {"user:email"},
		"state":        {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the authorization code for an access token and fetches
// the user's profile. GitHub hides the email on the user endpoint for many
// accounts, so the emails endpoint is consulted as a fallback.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	accessToken, err := exchangeCode(ctx, p.config.TokenURL, url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
	})
	if err != nil {
		return nil, err
	}

	var user githubUser
	if err := fetchJSON(ctx, p.config.UserURL, accessToken, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in github user")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		if err := fetchJSON(ctx, p.config.EmailsURL, accessToken, &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	profile := &Profile{ID: fmt.Sprintf("%d", user.ID), Name: name}
	if email != "" {
		profile.Emails = []string{email}
	}
	if user.AvatarURL != "" {
		profile.Photos = []string{user.AvatarURL}
	}
	return profile, nil
}

// --- shared HTTP plumbing ---

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

func exchangeCode(ctx context.Context, tokenURL string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return tok.AccessToken, nil
}

func fetchJSON(ctx context.Context, endpoint, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}
