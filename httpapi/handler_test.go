package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/mail"
)

type inbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (i *inbox) Send(_ context.Context, msg mail.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return nil
}

func (i *inbox) code(t *testing.T, to, subject string) string {
	t.Helper()
	require.Eventually(t, func() bool {
		i.mu.Lock()
		defer i.mu.Unlock()
		for _, m := range i.msgs {
			if m.To == to && m.Subject == subject {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	i.mu.Lock()
	defer i.mu.Unlock()
	for n := len(i.msgs) - 1; n >= 0; n-- {
		m := i.msgs[n]
		if m.To == to && m.Subject == subject {
			start := strings.Index(m.HTML, "<h1>") + len("<h1>")
			end := strings.Index(m.HTML, "</h1>")
			return m.HTML[start:end]
		}
	}
	return ""
}

const adminToken = "admin-token"

// withAdmin accepts adminToken as an administrator's access token.
type withAdmin struct {
	*storeauth.Engine
}

func (w withAdmin) Authorize(ctx context.Context, token string) (account.Account, error) {
	if token == adminToken {
		return account.Account{ID: "root", Role: account.RoleAdmin, Status: account.StatusActive, Verified: true}, nil
	}
	return w.Engine.Authorize(ctx, token)
}

type server struct {
	router *mux.Router
	engine *storeauth.Engine
	inbox  *inbox
}

func newServer(t *testing.T) *server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := storeauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	box := &inbox{}
	engine, err := storeauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(box).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &server{
		router: NewRouter(withAdmin{engine}, cfg.Cookie),
		engine: engine,
		inbox:  box,
	}
}

func (s *server) do(t *testing.T, method, path string, body any, mods ...func(*http.Request)) (*httptest.ResponseRecorder, storeauth.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, mod := range mods {
		mod(req)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp storeauth.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	t.Fatal("no refreshToken cookie set")
	return nil
}

func (s *server) signup(t *testing.T, email, password string) {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Alice", "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, storeauth.MsgRegistered, resp.Message)

	code := s.inbox.code(t, email, "OTP for Email Verification")
	rec, resp = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"email": email, "otp": code})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, storeauth.MsgEmailVerified, resp.Message)
}

func (s *server) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)

	data := resp.Data.(map[string]any)
	access := data["accessToken"].(string)
	require.NotEmpty(t, access)
	return access, refreshCookie(t, rec)
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Name, email and password are required", resp.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	s.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	s := newServer(t)
	s.signup(t, "a@x.com", "pw")

	_, cookie := s.login(t, "a@x.com", "pw")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.InDelta(t, 7*24*time.Hour.Seconds(), float64(cookie.MaxAge), 5)
}

func TestLoginBeforeVerify(t *testing.T) {
	s := newServer(t)
	s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"name": "A", "email": "a@x.com", "password": "pw"})

	rec, resp := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please verify your email", resp.Message)
}

func TestMeRequiresAccessToken(t *testing.T) {
	s := newServer(t)
	s.signup(t, "a@x.com", "pw")
	access, _ := s.login(t, "a@x.com", "pw")

	rec, resp := s.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User token not found", resp.Message)

	rec, resp = s.do(t, http.MethodGet, "/api/auth/me", nil, bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", resp.Data.(map[string]any)["email"])

	rec, _ = s.do(t, http.MethodGet, "/api/auth/me", nil, withCookie(&http.Cookie{Name: "token", Value: access}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshRotationAndReuse(t *testing.T) {
	s := newServer(t)
	s.signup(t, "a@x.com", "pw")
	_, first := s.login(t, "a@x.com", "pw")

	rec, resp := s.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(first))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storeauth.MsgTokenRefreshed, resp.Message)
	second := refreshCookie(t, rec)
	assert.NotEqual(t, first.Value, second.Value)

	rec, resp = s.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": first.Value})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Token reuse detected", resp.Message)

	rec, resp = s.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(second))
	assert.Equal(t, http.StatusForbidden, rec.Code, resp.Message)
}

func TestRefreshMissingToken(t *testing.T) {
	s := newServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Refresh token is required", resp.Message)
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newServer(t)
	s.signup(t, "a@x.com", "pw")
	_, cookie := s.login(t, "a@x.com", "pw")

	rec, resp := s.do(t, http.MethodPost, "/api/auth/logout", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storeauth.MsgLoggedOut, resp.Message)
	cleared := refreshCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	s := newServer(t)
	s.signup(t, "a@x.com", "old")
	_, cookie := s.login(t, "a@x.com", "old")

	rec, resp := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@x.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storeauth.MsgResetRequested, resp.Message)

	rec, resp = s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storeauth.MsgResetRequested, resp.Message)

	code := s.inbox.code(t, "a@x.com", "Password Reset OTP")
	rec, resp = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"email": "a@x.com", "otp": code, "newPassword": "new",
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.login(t, "a@x.com", "new")
}

func TestAdminStatusUpdate(t *testing.T) {
	s := newServer(t)
	s.signup(t, "user@x.com", "pw")

	userAccess, userCookie := s.login(t, "user@x.com", "pw")
	userID := decodeMe(t, s, userAccess)

	path := "/api/auth/accounts/" + userID + "/status"
	rec, resp := s.do(t, http.MethodPatch, path, map[string]string{"status": "blocked"}, bearer(userAccess))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Unauthorized access", resp.Message)

	rec, resp = s.do(t, http.MethodPatch, path, map[string]string{"status": "blocked"}, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)

	rec, resp = s.do(t, http.MethodGet, "/api/auth/me", nil, bearer(userAccess))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, resp.Message, "blocked")

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", nil, withCookie(userCookie))
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec, resp = s.do(t, http.MethodPatch, "/api/auth/accounts/nope/status", map[string]string{"status": "active"}, bearer(adminToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Account not found", resp.Message)
}

func TestLogoutAll(t *testing.T) {
	s := newServer(t)
	s.signup(t, "a@x.com", "pw")
	access, _ := s.login(t, "a@x.com", "pw")
	s.login(t, "a@x.com", "pw")

	rec, resp := s.do(t, http.MethodPost, "/api/auth/logout-all", nil, bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]any)["sessions"])
}

func decodeMe(t *testing.T, s *server, access string) string {
	t.Helper()
	rec, resp := s.do(t, http.MethodGet, "/api/auth/me", nil, bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	return resp.Data.(map[string]any)["id"].(string)
}
