package post

import (
	"net/http"
	"strconv"

	"picshare/internal/middleware"
	"picshare/internal/pkg/response"
	"picshare/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

// maxCreateBody bounds POST /post, whose body carries a base64 image.
const maxCreateBody = 16 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, authenticate gin.HandlerFunc) {
	g := v1.Group("/post")
	{
		g.GET("", h.List)
		g.GET("/:id", h.ListByUser)

		g.POST("", authenticate, h.Create)
		g.PUT("/:id", authenticate, h.ToggleLike)
		g.DELETE("/:id", authenticate, h.Delete)
	}
}

// List returns every post, newest first.
// @Summary		List posts
// @Tags		Posts
// @Produce		json
// @Success		200	{object}	map[string]interface{}
// @Router		/post [get]
func (h *Handler) List(c *gin.Context) {
	posts, err := h.service.List(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, posts)
}

// ListByUser returns the posts of the user in :id.
// @Summary		List posts of a user
// @Tags		Posts
// @Produce		json
// @Param		id	path	int	true	"user id"
// @Success		200	{object}	map[string]interface{}
// @Router		/post/{id} [get]
func (h *Handler) ListByUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	posts, err := h.service.ListByUser(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, posts)
}

// Create publishes a post.
// @Summary		Create post
// @Tags		Posts
// @Security	BearerAuth
// @Accept		json
// @Produce		json
// @Param		body	body	CreatePostRequest	true	"payload"
// @Success		201	{object}	map[string]interface{}
// @Failure		400	{object}	map[string]interface{}
// @Router		/post [post]
func (h *Handler) Create(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCreateBody)

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if details := validator.Describe(err); details != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", details)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	post, err := h.service.Create(c.Request.Context(), ac.Profile, req.Prompt, req.Photo)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, post)
}

// ToggleLike likes or unlikes a post.
// @Summary		Like / unlike post
// @Tags		Posts
// @Security	BearerAuth
// @Produce		json
// @Param		id	path	int	true	"post id"
// @Success		200	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/post/{id} [put]
func (h *Handler) ToggleLike(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	post, err := h.service.ToggleLike(c.Request.Context(), ac.Profile, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// Delete removes a post of the current user.
// @Summary		Delete post
// @Tags		Posts
// @Security	BearerAuth
// @Param		id	path	int	true	"post id"
// @Success		200	{object}	map[string]interface{}
// @Failure		403	{object}	map[string]interface{}
// @Failure		404	{object}	map[string]interface{}
// @Router		/post/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), ac.UserID, id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Post deleted")
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid ID")
		return 0, false
	}
	return id, true
}
