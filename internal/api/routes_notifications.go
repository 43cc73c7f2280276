package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/consultportal/portal/internal/auth"
	"github.com/consultportal/portal/internal/handlers"
	"github.com/consultportal/portal/internal/middleware"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, prefs *handlers.PreferenceHandler) {
	producers := middleware.RequireRole(iauth.RoleAdmin, iauth.RoleConsultant)

	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.GET("/templates", handler.Templates)
		group.POST("/preview", handler.Preview)
		group.POST("/read", handler.MarkManyRead)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/cleanup", handler.Cleanup)
		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/dismiss", handler.Dismiss)

		group.POST("", producers, handler.Create)
		group.POST("/enhanced", producers, handler.CreateEnhanced)

		group.GET("/preferences", prefs.Get)
		group.PUT("/preferences", prefs.Update)
		group.PATCH("/preferences", prefs.Patch)
	}
}
