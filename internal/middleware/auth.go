package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"picshare/internal/domain"
	"picshare/internal/pkg/jwt"
	"picshare/internal/pkg/logger"
	"picshare/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	AccessTokenCookie  = "access-token"
	RefreshTokenCookie = "refresh-token"

	authContextKey = "picshare.auth"
)

// AuthContext is produced once per request by Authenticate and read by
// handlers through CurrentUser.
type AuthContext struct {
	UserID   int64
	Username string
	Role     domain.UserRole
	Profile  domain.Profile
}

type AccessVerifier interface {
	Verify(token string, purpose jwt.Purpose) (*jwt.Claims, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Authenticate accepts an access token from the access-token cookie or an
// Authorization: Bearer header and loads its owner.
func Authenticate(verifier AccessVerifier, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Not authorized, no token")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(token, jwt.PurposeAccess)
		if err != nil {
			if errors.Is(err, jwt.ErrExpired) {
				response.Error(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Access token expired")
			} else {
				response.Error(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Not authorized, token failed")
			}
			c.Abort()
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.Error(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Not authorized, user not found")
			} else {
				response.FromError(c, err)
			}
			c.Abort()
			return
		}

		c.Set(authContextKey, AuthContext{
			UserID:   user.ID,
			Username: user.Username,
			Role:     user.Role,
			Profile:  user.Profile(),
		})
		ctx := logger.WithContext(c.Request.Context(), logger.FromContext(c.Request.Context()).With("user_id", user.ID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	if v, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	h := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// CurrentUser returns the AuthContext stored by Authenticate.
func CurrentUser(c *gin.Context) (AuthContext, bool) {
	v, ok := c.Get(authContextKey)
	if !ok {
		return AuthContext{}, false
	}
	ac, ok := v.(AuthContext)
	return ac, ok
}

// RequireRole must run after Authenticate.
func RequireRole(role domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := CurrentUser(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "NOT_AUTHORIZED", "Authentication required")
			c.Abort()
			return
		}
		if ac.Role != role {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
