package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/saccochain/ledgersync/internal/listener"
	"go.uber.org/zap"
)

// ListenerHandler exposes lifecycle control of the event listener.
type ListenerHandler struct {
	listener *listener.Listener
	logger   *zap.Logger
}

// NewListenerHandler creates a ListenerHandler.
func NewListenerHandler(l *listener.Listener, logger *zap.Logger) *ListenerHandler {
	return &ListenerHandler{listener: l, logger: logger}
}

// Register mounts the listener routes on the given router group.
func (h *ListenerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/listener")
	{
		l.GET("/status", h.Status)
		l.POST("/start", h.Start)
		l.POST("/stop", h.Stop)
	}
}

// Status handles GET /listener/status.
func (h *ListenerHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.listener.GetStatus())
}

// Start handles POST /listener/start. Starting an already running listener
// is a no-op and still returns the current status.
func (h *ListenerHandler) Start(c *gin.Context) {
	if err := h.listener.Start(c.Request.Context()); err != nil {
		h.logger.Error("start listener", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start listener"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "listener started",
		"status":  h.listener.GetStatus(),
	})
}

// Stop handles POST /listener/stop.
func (h *ListenerHandler) Stop(c *gin.Context) {
	h.listener.Stop()
	c.JSON(http.StatusOK, gin.H{
		"message": "listener stopped",
		"status":  h.listener.GetStatus(),
	})
}
