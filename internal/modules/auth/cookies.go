package auth

import (
	"net/http"
	"strings"
	"time"

	"picshare/internal/config"
	"picshare/internal/middleware"

	"github.com/gin-gonic/gin"
)

// CookieOptions are the attributes of the session cookies.
type CookieOptions struct {
	Secure      bool
	SameSite    http.SameSite
	AccessPath  string
	RefreshPath string
}

func CookieOptionsFrom(cfg *config.AuthRuntimeConfig) CookieOptions {
	return CookieOptions{
		Secure:      cfg.CookieSecure,
		SameSite:    parseSameSite(cfg.CookieSameSite),
		AccessPath:  cfg.AccessCookiePath,
		RefreshPath: cfg.RefreshCookiePath,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

func (o CookieOptions) setSession(c *gin.Context, s *Session) {
	o.set(c, middleware.AccessTokenCookie, s.AccessToken, o.AccessPath, s.AccessExpiresAt)
	o.set(c, middleware.RefreshTokenCookie, s.RefreshToken, o.RefreshPath, s.RefreshExpiresAt)
}

func (o CookieOptions) clearSession(c *gin.Context) {
	o.set(c, middleware.AccessTokenCookie, "", o.AccessPath, time.Time{})
	o.set(c, middleware.RefreshTokenCookie, "", o.RefreshPath, time.Time{})
}

// set writes one http-only cookie; a zero expiry deletes it.
func (o CookieOptions) set(c *gin.Context, name, value, path string, expires time.Time) {
	maxAge := -1
	if !expires.IsZero() {
		maxAge = max(int(time.Until(expires).Seconds()), 1)
	}
	c.SetSameSite(o.SameSite)
	c.SetCookie(name, value, maxAge, path, "", o.Secure, true)
}
