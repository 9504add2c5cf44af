package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"picshare/internal/middleware"
	"picshare/internal/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validator.RegisterGin())

	f := newFixture(t)
	h := NewHandler(f.svc, CookieOptions{
		Secure:      true,
		SameSite:    http.SameSiteStrictMode,
		AccessPath:  "/",
		RefreshPath: "/api/v1/auth",
	})

	r := gin.New()
	v1 := r.Group("/api/v1")
	h.RegisterRoutes(v1, middleware.Authenticate(f.codec, f.users), func(c *gin.Context) { c.Next() })
	return r, f
}

func do(r http.Handler, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, apiResponse) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandler_RegisterSetsCookies(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "alice", "email": "a@x.com", "password": "Secur3!Pass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), `"username":"alice"`)
	assert.NotContains(t, w.Body.String(), "passwordHash")

	access := cookieNamed(w, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "/", access.Path)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)

	refresh := cookieNamed(w, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "/api/v1/auth", refresh.Path)
	assert.True(t, refresh.HttpOnly)
	assert.Greater(t, refresh.MaxAge, access.MaxAge)

	w, resp = do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "alice", "email": "other@x.com", "password": "Secur3!Pass",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "USERNAME_TAKEN", resp.Error.Code)
}

func TestHandler_RegisterValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "al", "email": "not-an-email", "password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "username", resp.Error.Details["username"])
	assert.Equal(t, "strongpassword", resp.Error.Details["password"])
}

func TestHandler_LoginInvalidIs400(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := do(r, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ghost@x.com", "password": "whatever"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", resp.Error.Code)
}

func TestHandler_RefreshStatuses(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := do(r, http.MethodPost, "/api/v1/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := do(r, http.MethodPost, "/api/v1/auth/refresh", nil,
		&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "forged"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SESSION_EXPIRED", resp.Error.Code)

	reg, _ := do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "alice", "email": "a@x.com", "password": "Secur3!Pass",
	})
	refresh := cookieNamed(reg, middleware.RefreshTokenCookie)

	w, resp = do(r, http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	rotated := cookieNamed(w, middleware.RefreshTokenCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	// replaying the consumed token
	w, _ = do(r, http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandler_ForgotPasswordIsUniform(t *testing.T) {
	r, f := newTestRouter(t)
	do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "alice", "email": "a@x.com", "password": "Secur3!Pass",
	})

	w1, _ := do(r, http.MethodPost, "/api/v1/auth/forgot-password", gin.H{"email": "a@x.com"})
	w2, _ := do(r, http.MethodPost, "/api/v1/auth/forgot-password", gin.H{"email": "ghost@x.com"})
	f.svc.WaitMail()

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, w1.Code, w2.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestHandler_ResetPasswordInvalidIs400(t *testing.T) {
	r, _ := newTestRouter(t)

	w, resp := do(r, http.MethodPost, "/api/v1/auth/reset-password", gin.H{"token": "nope", "password": "N3w!Passw0rd"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RESET_TOKEN", resp.Error.Code)
}

func TestHandler_Logout(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := do(r, http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	reg, _ := do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "alice", "email": "a@x.com", "password": "Secur3!Pass",
	})
	access := cookieNamed(reg, middleware.AccessTokenCookie)
	refresh := cookieNamed(reg, middleware.RefreshTokenCookie)

	for i := 0; i < 2; i++ {
		w, resp := do(r, http.MethodPost, "/api/v1/auth/logout", nil, access, refresh)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		cleared := cookieNamed(w, middleware.RefreshTokenCookie)
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
	}

	w, _ = do(r, http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandler_LogoutAll(t *testing.T) {
	r, _ := newTestRouter(t)

	reg, _ := do(r, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": "alice", "email": "a@x.com", "password": "Secur3!Pass",
	})
	login, _ := do(r, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "a@x.com", "password": "Secur3!Pass"})
	require.Equal(t, http.StatusOK, login.Code)

	w, _ := do(r, http.MethodPost, "/api/v1/auth/logout-all", nil, cookieNamed(login, middleware.AccessTokenCookie))
	assert.Equal(t, http.StatusOK, w.Code)

	for _, rec := range []*httptest.ResponseRecorder{reg, login} {
		w, _ := do(r, http.MethodPost, "/api/v1/auth/refresh", nil, cookieNamed(rec, middleware.RefreshTokenCookie))
		assert.Equal(t, http.StatusForbidden, w.Code)
	}
}
