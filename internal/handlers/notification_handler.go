package handlers

import (
	"strconv"

	"ridepool/internal/middleware"
	"ridepool/internal/services"
	"ridepool/internal/utils"
	"ridepool/pkg/logger"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notificationService services.NotificationService
	realtimeService     services.RealtimeService
	auditService        services.AuditService
	logger              *logger.Logger
}

func NewNotificationHandler(
	notificationService services.NotificationService,
	realtimeService services.RealtimeService,
	auditService services.AuditService,
	log *logger.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		realtimeService:     realtimeService,
		auditService:        auditService,
		logger:              log.WithField("handler", "notifications"),
	}
}

// ListNotifications handles GET /notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	notifications, total, err := h.notificationService.GetNotifications(c.Request.Context(), userID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Notifications retrieved", notifications, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Count:      len(notifications),
	})
}

// UnreadCount handles GET /notifications/unread
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	count, err := h.notificationService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Unread count retrieved", gin.H{"unread": count})
}

// MarkRead handles POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	notificationID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), notificationID, userID); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notification marked read", nil)
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	count, err := h.notificationService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Notifications marked read", gin.H{"marked": count})
}

// ResyncFeed handles GET /notifications/resync
func (h *NotificationHandler) ResyncFeed(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(utils.ResyncDefaultLimit)))
	snapshot, err := h.realtimeService.Resync(c.Request.Context(), services.SubscriptionPredicate{RecipientID: &userID}, limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Snapshot retrieved", snapshot)
}

// ListAuditLogs handles GET /admin/audit-logs
func (h *NotificationHandler) ListAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	resource := c.Query("resource")
	resourceID := c.Query("resource_id")

	entries, total, err := h.auditService.List(c.Request.Context(), resource, resourceID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Audit logs retrieved", entries, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Count:      len(entries),
	})
}
