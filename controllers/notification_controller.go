package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Danh sách thông báo
func (h *Handler) GetNotifications(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.svc.Notifications.List(c.Request.Context(), user, c.Query("unread") == "true", requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "total": len(list)})
}

// Đếm số thông báo chưa đọc
func (h *Handler) GetUnreadCount(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	n, err := h.svc.Notifications.UnreadCount(c.Request.Context(), user, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

// Đánh dấu đã đọc
func (h *Handler) MarkNotificationAsRead(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), user, id, requestNow(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}
