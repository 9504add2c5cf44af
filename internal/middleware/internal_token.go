package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"picshare/internal/pkg/logger"
	"picshare/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// InternalToken protects operational endpoints (/metrics) with a static
// bearer token and an optional client IP allow-list. An empty token leaves
// the endpoint open, which is what local development wants.
func InternalToken(token string, allowedIPs []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedIPs))
	for _, ip := range allowedIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if len(allowed) > 0 && !allowed[c.ClientIP()] {
			rejectInternal(c, http.StatusForbidden, "ip_not_allowed", "IP not allowed")
			return
		}
		if token == "" {
			c.Next()
			return
		}

		scheme, presented, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			rejectInternal(c, http.StatusUnauthorized, "missing_auth", "Authorization header must be 'Bearer <token>'")
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) != 1 {
			rejectInternal(c, http.StatusForbidden, "invalid_token", "Invalid internal token")
			return
		}

		c.Next()
	}
}

func rejectInternal(c *gin.Context, status int, reason, message string) {
	logger.FromContext(c.Request.Context()).Warn("internal endpoint rejected",
		"status", status, "reason", reason, "client_ip", c.ClientIP())
	code := "AUTH_INVALID"
	if status == http.StatusUnauthorized {
		code = "AUTH_MISSING"
	}
	response.Error(c, status, code, message)
	c.Abort()
}
