package auth

import (
	"errors"
	"net/http"

	"picshare/internal/middleware"
	"picshare/internal/pkg/apperr"
	"picshare/internal/pkg/logger"
	"picshare/internal/pkg/response"
	"picshare/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent"

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service *Service
	cookies CookieOptions
}

func NewHandler(service *Service, cookies CookieOptions) *Handler {
	return &Handler{service: service, cookies: cookies}
}

// RegisterRoutes mounts /auth. limit guards the credential endpoints and
// authenticate the logout ones.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, authenticate, limit gin.HandlerFunc) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", limit, h.Login)
		authGroup.POST("/register", limit, h.Register)
		authGroup.POST("/google", limit, h.GoogleLogin)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/forgot-password", limit, h.ForgotPassword)
		authGroup.POST("/reset-password", limit, h.ResetPassword)
		authGroup.POST("/logout", authenticate, h.Logout)
		authGroup.POST("/logout-all", authenticate, h.LogoutAll)
	}
}

func bindError(c *gin.Context, err error) {
	if details := validator.Describe(err); details != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", details)
		return
	}
	response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
}

// Register creates an account and signs it in.
// @Summary		Register
// @Tags		Auth
// @Accept		json
// @Produce		json
// @Param		body	body	RegisterRequest	true	"payload"
// @Success		201	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Router		/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.service.Register(c.Request.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, c.Request.UserAgent())
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.cookies.setSession(c, session)
	response.Success(c, http.StatusCreated, session.User)
}

// Login signs in with e-mail and password.
// @Summary		Login
// @Tags		Auth
// @Accept		json
// @Produce		json
// @Param		body	body	LoginRequest	true	"payload"
// @Success		200	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Router		/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.service.Login(c.Request.Context(), req.Email, req.Password, c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.FromErrorStatus(c, http.StatusBadRequest, err)
			return
		}
		response.FromError(c, err)
		return
	}

	h.cookies.setSession(c, session)
	response.Success(c, http.StatusOK, session.User)
}

// GoogleLogin signs in with a Google ID token, creating the account if needed.
// @Summary		Google sign-in
// @Tags		Auth
// @Accept		json
// @Produce		json
// @Param		body	body	GoogleLoginRequest	true	"payload"
// @Success		200	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Failure		500	{object}	map[string]interface{}
// @Router		/auth/google [post]
func (h *Handler) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.service.LoginWithGoogle(c.Request.Context(), req.Credential, c.Request.UserAgent())
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindAuthentication, apperr.KindUpstream:
			logger.FromContext(c.Request.Context()).Warn("google sign-in failed", "err", err)
			response.FromErrorStatus(c, http.StatusBadRequest, err)
		default:
			response.FromError(c, err)
		}
		return
	}

	h.cookies.setSession(c, session)
	response.Success(c, http.StatusOK, session.User)
}

// Refresh rotates the session using the refresh-token cookie.
// @Summary		Refresh session
// @Tags		Auth
// @Produce		json
// @Success		200	{object}	map[string]interface{}
// @Failure		401	{object}	map[string]interface{}
// @Failure		403	{object}	map[string]interface{}
// @Router		/auth/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshTokenCookie)

	session, err := h.service.Refresh(c.Request.Context(), token, c.Request.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingRefreshToken):
			response.FromErrorStatus(c, http.StatusUnauthorized, err)
		case errors.Is(err, ErrSessionInvalid):
			h.cookies.clearSession(c)
			response.FromErrorStatus(c, http.StatusForbidden, err)
		default:
			response.FromError(c, err)
		}
		return
	}

	h.cookies.setSession(c, session)
	response.Message(c, http.StatusOK, "Token refreshed")
}

// ForgotPassword answers identically whether or not the account exists.
// @Summary		Request password reset
// @Tags		Auth
// @Accept		json
// @Produce		json
// @Param		body	body	ForgotPasswordRequest	true	"payload"
// @Success		200	{object}	map[string]interface{}
// @Router		/auth/forgot-password [post]
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		response.FromError(c, err)
		return
	}
	response.Message(c, http.StatusOK, forgotPasswordMessage)
}

// ResetPassword sets a new password from an e-mailed reset token.
// @Summary		Reset password
// @Tags		Auth
// @Accept		json
// @Produce		json
// @Param		body	body	ResetPasswordRequest	true	"payload"
// @Success		200	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Router		/auth/reset-password [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			response.FromErrorStatus(c, http.StatusBadRequest, err)
			return
		}
		response.FromError(c, err)
		return
	}

	h.cookies.clearSession(c)
	response.Message(c, http.StatusOK, "Password has been reset, please sign in again")
}

// Logout ends the current session. It always succeeds.
// @Summary		Logout
// @Tags		Auth
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}
// @Router		/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	token, _ := c.Cookie(middleware.RefreshTokenCookie)

	if err := h.service.Logout(c.Request.Context(), token, ac.UserID); err != nil {
		logger.FromContext(c.Request.Context()).Error("logout", "err", err)
	}

	h.cookies.clearSession(c)
	response.Message(c, http.StatusOK, "Logged out successfully")
}

// LogoutAll ends every session of the current user.
// @Summary		Logout from all devices
// @Tags		Auth
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}
// @Router		/auth/logout-all [post]
func (h *Handler) LogoutAll(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)

	if _, err := h.service.LogoutAll(c.Request.Context(), ac.UserID); err != nil {
		logger.FromContext(c.Request.Context()).Error("logout all", "err", err)
	}

	h.cookies.clearSession(c)
	response.Message(c, http.StatusOK, "Logged out from all devices")
}
