package routes

import (
	"ridepool/internal/handlers"
	"ridepool/internal/middleware"
	"ridepool/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// SetupNotificationRoutes sets up the notification feed and the
// websocket entry point
func SetupNotificationRoutes(r *gin.RouterGroup, secret string, notificationHandler *handlers.NotificationHandler, wsHandler *websocket.Handler) {
	notifications := r.Group("/notifications")
	notifications.Use(middleware.AuthRequired(secret))
	{
		notifications.GET("", notificationHandler.ListNotifications)
		notifications.GET("/unread", notificationHandler.UnreadCount)
		notifications.GET("/resync", notificationHandler.ResyncFeed)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	ws := r.Group("/ws")
	ws.Use(middleware.AuthRequired(secret))
	{
		ws.GET("", wsHandler.HandleWebSocket)
	}

	admin := r.Group("/admin/audit-logs")
	admin.Use(middleware.AuthRequired(secret), middleware.AdminRequired())
	{
		admin.GET("", notificationHandler.ListAuditLogs)
	}
}
