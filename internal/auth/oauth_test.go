package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleLoginURL(t *testing.T) {
	p := NewGoogleProvider(GoogleConfig{
		ClientID:    "client-1",
		RedirectURL: "https://api.tradepost.io/auth/google/callback",
	})

	raw := p.LoginURL("state-xyz")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestGoogleExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse token form: %v", err)
		}
		assert.Equal(t, "code-1", r.Form.Get("code"))
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"g-123","email":"a@x.com","name":"Alice Adams","picture":"https://img/a.png"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGoogleProvider(GoogleConfig{
		ClientID:     "client-1",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	})

	profile, err := p.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "g-123", profile.ID)
	assert.Equal(t, []string{"a@x.com"}, profile.Emails)
	assert.Equal(t, "Alice Adams", profile.Name)
	assert.Equal(t, []string{"https://img/a.png"}, profile.Photos)
}

func TestGoogleExchangeTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewGoogleProvider(GoogleConfig{TokenURL: srv.URL, UserInfoURL: srv.URL})

	_, err := p.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestGitHubExchangeEmailFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-2"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		// Email hidden on the user endpoint, as GitHub does for most
		// accounts.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"login":"alice","name":"","email":"","avatar_url":"https://img/gh.png"}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"email":"old@x.com","primary":false,"verified":true},
			{"email":"a@x.com","primary":true,"verified":true}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewGitHubProvider(GitHubConfig{
		TokenURL:  srv.URL + "/token",
		UserURL:   srv.URL + "/user",
		EmailsURL: srv.URL + "/emails",
	})

	profile, err := p.Exchange(context.Background(), "code-2")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, []string{"a@x.com"}, profile.Emails)
	assert.Equal(t, "alice", profile.Name, "login is the display-name fallback")
}

func TestProfileSplitName(t *testing.T) {
	tests := []struct {
		name  string
		first string
		last  string
	}{
		{"Alice Adams", "Alice", "Adams"},
		{"Alice", "Alice", ""},
		{"", "", ""},
		{"Alice van der Berg", "Alice", "van der Berg"},
	}
	for _, tt := range tests {
		p := &Profile{Name: tt.name}
		first, last := p.SplitName()
		assert.Equal(t, tt.first, first, "name %q", tt.name)
		assert.Equal(t, tt.last, last, "name %q", tt.name)
	}
}
