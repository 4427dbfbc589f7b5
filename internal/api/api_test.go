package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepost-io/tradepost/internal/auth"
	"github.com/tradepost-io/tradepost/internal/config"
	"github.com/tradepost-io/tradepost/internal/database"
	"github.com/tradepost-io/tradepost/internal/store"
)

// fakeProvider satisfies auth.OAuthProvider without talking to a real IdP.
type fakeProvider struct {
	name    string
	profile *auth.Profile
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) LoginURL(state string) string {
	return "https://idp.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*auth.Profile, error) {
	if code != "good-code" {
		return nil, fmt.Errorf("bad code")
	}
	return f.profile, nil
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{APIPort: 8081, FrontendURL: "https://app.example"}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "api_test.db")
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenDuration = time.Hour

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db, "sqlite"))

	st := store.New(db)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	svc := auth.NewService(st, st, tokens)

	providers := map[string]auth.OAuthProvider{
		"testidp": &fakeProvider{
			name: "testidp",
			profile: &auth.Profile{
				ID:     "idp-1",
				Emails: []string{"social@x.com"},
				Name:   "Sam Social",
				Photos: []string{"https://img.example/sam.png"},
			},
		},
	}

	apiServer, err := New(cfg, svc, providers)
	require.NoError(t, err)
	t.Cleanup(apiServer.Close)

	server := httptest.NewServer(apiServer.Router())
	t.Cleanup(server.Close)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{server: server, client: client}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) register(t *testing.T, email, password string) (string, map[string]interface{}) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"firstName": "A", "lastName": "B", "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]interface{})
	return token, user
}

func TestRegisterProfileLogoutFlow(t *testing.T) {
	env := setupTestEnv(t)

	token, user := env.register(t, "a@x.com", "pw123456")
	assert.Equal(t, "a@x.com", user["email"])
	assert.Nil(t, user["role"], "role stays unset until profile setup")

	resp := env.do(t, http.MethodGet, "/user/profile", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	profile := body["user"].(map[string]interface{})
	assert.Equal(t, "a@x.com", profile["email"])
	assert.NotContains(t, profile, "password_hash", "password hash never leaves the server")

	resp = env.do(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The token still signature-validates but its session is revoked.
	resp = env.do(t, http.MethodGet, "/user/profile", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)

	env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"firstName": "C", "lastName": "D", "email": "A@X.com", "password": "pw123456",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "conflict", body["error"])
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"firstName": "A", "lastName": "B", "email": "not-an-email", "password": "pw123456",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"firstName": "A", "lastName": "B", "email": "a@x.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLoginUniformFailure(t *testing.T) {
	env := setupTestEnv(t)

	env.register(t, "a@x.com", "pw123456")

	wrongPw := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, wrongPw.StatusCode)
	wrongPwBody := decodeBody(t, wrongPw)

	noUser := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "nobody@x.com", "password": "pw123456",
	})
	require.Equal(t, http.StatusUnauthorized, noUser.StatusCode)
	noUserBody := decodeBody(t, noUser)

	assert.Equal(t, wrongPwBody["message"], noUserBody["message"],
		"wrong password and unknown account must be indistinguishable")
}

func TestLoginSuccess(t *testing.T) {
	env := setupTestEnv(t)

	env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "A@X.COM", "password": "pw123456",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.NotNil(t, user["last_login"])
}

func TestRefreshRotatesSession(t *testing.T) {
	env := setupTestEnv(t)

	oldToken, _ := env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPost, "/auth/refresh", oldToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	newToken := decodeBody(t, resp)["token"].(string)
	require.NotEqual(t, oldToken, newToken)

	// Old session is dead, new one works.
	resp = env.do(t, http.MethodGet, "/user/profile", oldToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/user/profile", newToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLogoutIdempotent(t *testing.T) {
	env := setupTestEnv(t)

	token, _ := env.register(t, "a@x.com", "pw123456")

	for i := 0; i < 3; i++ {
		resp := env.do(t, http.MethodPost, "/auth/logout", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "logout attempt %d", i+1)
		resp.Body.Close()
	}
}

func TestProfileRequiresToken(t *testing.T) {
	env := setupTestEnv(t)

	resp := env.do(t, http.MethodGet, "/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/user/profile", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestUpdateProfile(t *testing.T) {
	env := setupTestEnv(t)

	token, _ := env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPut, "/user/profile", token, map[string]string{
		"role": "seller", "firstName": "Alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decodeBody(t, resp)["user"].(map[string]interface{})
	assert.Equal(t, "seller", user["role"])
	assert.Equal(t, "Alice", user["first_name"])
	assert.Equal(t, true, user["profile_setup"])

	resp = env.do(t, http.MethodPut, "/user/profile", token, map[string]string{
		"role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env := setupTestEnv(t)

	token, _ := env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPut, "/user/password", token, map[string]string{
		"currentPassword": "pw123456", "newPassword": "brandnew123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/user/profile", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode,
		"password change revokes existing sessions")
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "brandnew123",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionsList(t *testing.T) {
	env := setupTestEnv(t)

	token, _ := env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "pw123456",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/auth/sessions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := decodeBody(t, resp)["sessions"].([]interface{})
	assert.Len(t, sessions, 2, "register and login each opened a session")
}

func TestLogoutAll(t *testing.T) {
	env := setupTestEnv(t)

	t1, _ := env.register(t, "a@x.com", "pw123456")

	resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "pw123456",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t2 := decodeBody(t, resp)["token"].(string)

	resp = env.do(t, http.MethodPost, "/auth/logout-all", t1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	for _, token := range []string{t1, t2} {
		resp = env.do(t, http.MethodGet, "/user/profile", token, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestHeartbeat(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.server.URL + "/heartbeat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
