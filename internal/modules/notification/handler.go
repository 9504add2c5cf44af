package notification

import (
	"net/http"
	"strconv"

	"picshare/internal/middleware"
	"picshare/internal/pkg/logger"
	"picshare/internal/pkg/response"
	"picshare/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Connections is the part of the registry the stream endpoints use.
type Connections interface {
	Open(ownerID int64, t realtime.Transport) (*realtime.Conn, error)
	Close(c *realtime.Conn)
}

type Handler struct {
	service  *Service
	conns    Connections
	upgrader *websocket.Upgrader
}

func NewHandler(service *Service, conns Connections, upgrader *websocket.Upgrader) *Handler {
	return &Handler{service: service, conns: conns, upgrader: upgrader}
}

// RegisterRoutes mounts /notification; every route requires authenticate.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, authenticate gin.HandlerFunc) {
	g := v1.Group("/notification", authenticate)
	{
		g.GET("", h.List)
		g.GET("/unread-count", h.UnreadCount)
		g.GET("/stream", h.Stream)
		g.GET("/ws", h.WebSocket)

		g.PUT("/:id/read", h.MarkRead)
		g.DELETE("/:id", h.Delete)

		g.PUT("/mark-all-read", h.MarkAllRead)
		g.DELETE("/delete-all", h.DeleteAll)
	}
}

func (h *Handler) List(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)

	list, err := h.service.List(c.Request.Context(), ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)

	n, err := h.service.UnreadCount(c.Request.Context(), ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": n})
}

func (h *Handler) MarkRead(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	n, err := h.service.MarkRead(c.Request.Context(), id, ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)

	n, err := h.service.MarkAllRead(c.Request.Context(), ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"modifiedCount": n})
}

func (h *Handler) Delete(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	n, err := h.service.Delete(c.Request.Context(), id, ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, n)
}

func (h *Handler) DeleteAll(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)

	n, err := h.service.DeleteAll(c.Request.Context(), ac.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deletedCount": n})
}

// Stream holds an SSE response open and registers it for pushes until the
// client leaves or the registry drops it.
func (h *Handler) Stream(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	log := logger.FromContext(c.Request.Context())

	tr, err := realtime.NewSSETransport(c.Writer)
	if err != nil {
		log.Error("open event stream", "err", err)
		return
	}
	conn, err := h.conns.Open(ac.UserID, tr)
	if err != nil {
		log.Warn("event stream refused", "err", err)
		return
	}

	select {
	case <-c.Request.Context().Done():
	case <-conn.Done():
	}
	h.conns.Close(conn)
	conn.Wait()
}

// WebSocket carries the same frames as Stream over a WebSocket.
func (h *Handler) WebSocket(c *gin.Context) {
	ac, _ := middleware.CurrentUser(c)
	log := logger.FromContext(c.Request.Context())

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Info("websocket upgrade failed", "err", err)
		return
	}
	tr := realtime.NewWSTransport(ws)
	conn, err := h.conns.Open(ac.UserID, tr)
	if err != nil {
		log.Warn("websocket refused", "err", err)
		_ = tr.Close()
		return
	}

	go func() {
		_ = tr.Drain()
		h.conns.Close(conn)
	}()

	<-conn.Done()
	conn.Wait()
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return 0, false
	}
	return id, true
}
