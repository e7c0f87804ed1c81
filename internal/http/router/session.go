package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/counsel/internal/http/handler"
)

func SessionRouter(rg *gin.RouterGroup, h *handler.SessionHandler, status *handler.SessionStatusHandler) {
	rg.POST("/:session_id/messages", h.SendMessage)
	rg.DELETE("/:session_id", h.End)
	rg.GET("/:session_id/status/stream", status.Stream)
}
