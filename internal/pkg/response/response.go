package response

import (
	"net/http"

	"picshare/internal/pkg/apperr"
	"picshare/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

// Message is a success envelope carrying only a human readable message.
func Message(c *gin.Context, statusCode int, message string) {
	Success(c, statusCode, gin.H{"message": message})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// StatusFor maps an error kind to its default HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err using the status implied by its kind.
func FromError(c *gin.Context, err error) {
	FromErrorStatus(c, 0, err)
}

// FromErrorStatus writes err with an explicit status; zero means the default
// for its kind. Unclassified errors are logged and reported as a generic 500.
func FromErrorStatus(c *gin.Context, status int, err error) {
	e, ok := apperr.As(err)
	if !ok {
		logger.FromContext(c.Request.Context()).Error("unhandled error", "err", err)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		Error(c, status, "INTERNAL_ERROR", "Something went wrong")
		return
	}
	if status == 0 {
		status = StatusFor(e.Kind)
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed", "code", e.Code, "err", err)
	}
	Error(c, status, e.Code, e.Message)
}
