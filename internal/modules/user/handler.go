package user

import (
	"net/http"

	"picshare/internal/middleware"
	"picshare/internal/pkg/response"
	"picshare/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

const maxEditBody = 16 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, authenticate gin.HandlerFunc) {
	g := v1.Group("/user")
	{
		g.GET("/current", authenticate, h.Current)
		g.PUT("/edit", authenticate, h.Edit)
		g.GET("/:username", h.ByUsername)
	}
}

// Current returns the signed-in user's profile.
// @Summary		Current user
// @Tags		Users
// @Security	BearerAuth
// @Produce		json
// @Success		200	{object}	map[string]interface{}
// @Router		/user/current [get]
func (h *Handler) Current(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)

	p, err := h.service.Current(c.Request.Context(), ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// Edit changes username, email or photo of the signed-in user.
// @Summary		Edit profile
// @Tags		Users
// @Security	BearerAuth
// @Accept		json
// @Produce		json
// @Param		body	body	EditRequest	true	"payload"
// @Success		200	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Router		/user/edit [put]
func (h *Handler) Edit(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEditBody)

	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if details := validator.Describe(err); details != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", details)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	p, err := h.service.Edit(c.Request.Context(), ac.UserID, EditInput(req))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// ByUsername returns a public profile.
// @Summary		User by username
// @Tags		Users
// @Produce		json
// @Param		username	path	string	true	"username"
// @Success		200	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/user/{username} [get]
func (h *Handler) ByUsername(c *gin.Context) {
	p, err := h.service.ByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}
