package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"picshare/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func run(t *testing.T, fn func(c *gin.Context)) (int, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestFromError_KindMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("BAD", "bad"), http.StatusBadRequest},
		{apperr.Conflict("TAKEN", "taken"), http.StatusBadRequest},
		{apperr.Authentication("AUTH", "no"), http.StatusUnauthorized},
		{apperr.Forbidden("NOPE", "no"), http.StatusForbidden},
		{apperr.NotFound("MISSING", "missing"), http.StatusNotFound},
		{apperr.Configuration("CONFIG", "broken"), http.StatusInternalServerError},
		{apperr.Upstream("UPSTREAM", "down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		code, env := run(t, func(c *gin.Context) { FromError(c, tc.err) })
		assert.Equal(t, tc.want, code, tc.err.Error())
		assert.False(t, env.Success)
	}
}

func TestFromError_WrappedKeepsCode(t *testing.T) {
	sentinel := apperr.NotFound("POST_NOT_FOUND", "Post not found")
	err := fmt.Errorf("load: %w", sentinel.Wrap(errors.New("record not found")))

	code, env := run(t, func(c *gin.Context) { FromError(c, err) })
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "POST_NOT_FOUND", env.Error.Code)
	assert.Equal(t, "Post not found", env.Error.Message)
}

func TestFromError_UnknownIsGeneric(t *testing.T) {
	code, env := run(t, func(c *gin.Context) { FromError(c, errors.New("pq: connection refused")) })
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "pq")
}

func TestFromErrorStatus_Override(t *testing.T) {
	code, env := run(t, func(c *gin.Context) {
		FromErrorStatus(c, http.StatusForbidden, apperr.Authentication("TOKEN_EXPIRED", "expired"))
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "TOKEN_EXPIRED", env.Error.Code)
}

func TestMessage(t *testing.T) {
	code, env := run(t, func(c *gin.Context) { Message(c, http.StatusOK, "done") })
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"message":"done"}`, string(env.Data))
}
