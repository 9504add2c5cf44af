package auth

import (
	"errors"

	"picshare/internal/pkg/apperr"
)

var (
	ErrUsernameTaken      = apperr.Conflict("USERNAME_TAKEN", "Username already taken")
	ErrEmailTaken         = apperr.Conflict("EMAIL_TAKEN", "Email already taken")
	ErrInvalidCredentials = apperr.Authentication("INVALID_CREDENTIALS", "Invalid email or password")

	ErrInvalidGoogleCredential = apperr.Authentication("INVALID_GOOGLE_CREDENTIAL", "Google sign-in failed")
	ErrGoogleNotConfigured     = apperr.Configuration("GOOGLE_NOT_CONFIGURED", "Google sign-in is not available")
	ErrGoogleUnavailable       = apperr.Upstream("GOOGLE_UNAVAILABLE", "Google sign-in failed")

	ErrMissingRefreshToken = apperr.Authentication("REFRESH_TOKEN_REQUIRED", "Refresh token required")
	// ErrSessionInvalid is the only refresh failure clients see; the reason
	// travels in the wrapped cause.
	ErrSessionInvalid = apperr.Authentication("SESSION_EXPIRED", "Your session has expired, please sign in again")

	ErrInvalidResetToken = apperr.Authentication("INVALID_RESET_TOKEN", "Password reset link is invalid or has expired")
)

// Refresh rejection reasons. They are wrapped in ErrSessionInvalid and only
// ever logged.
var (
	ErrRefreshTokenInvalid  = errors.New("refresh token signature invalid")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrSessionUserNotFound  = errors.New("session owner not found")
)
