package api

import (
	"github.com/gin-gonic/gin"

	"github.com/consultportal/portal/internal/handlers"
)

// The websocket endpoint authenticates inside the handler since browsers
// cannot attach headers to the upgrade request.
func registerRealtimeRoutes(r *gin.Engine, handler *handlers.RealtimeHandler) {
	r.GET("/ws", handler.Stream)
}
