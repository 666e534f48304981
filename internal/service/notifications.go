package service

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/dirk.krummacker/birthday-service/internal/model"
)

// notificationPageSize is the number of notifications listed.
const notificationPageSize = 20

// listNotifications responds with the newest notifications and the number of unread ones.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/notifications
func (s *Server) listNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	notifications, err := s.store.Notifications(ctx, userID(c), notificationPageSize)
	if err != nil {
		s.internalError(c, err)
		return
	}
	unread, err := s.store.UnreadCount(ctx, userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	c.IndentedJSON(http.StatusOK, gin.H{"notifications": notifications, "unread_count": unread})
}

// unreadNotificationCount responds with the number of unread notifications.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/notifications/unread-count
func (s *Server) unreadNotificationCount(c *gin.Context) {
	unread, err := s.store.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"count": unread})
}

// markNotificationRead marks one notification as read.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/notifications/12/read --request "PATCH"
func (s *Server) markNotificationRead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.MarkRead(c.Request.Context(), userID(c), id, s.clock.Now()); err != nil {
		s.fail(c, err, "notification not found")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

// markAllNotificationsRead marks every unread notification as read.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/notifications/read-all --request "PATCH"
func (s *Server) markAllNotificationsRead(c *gin.Context) {
	n, err := s.store.MarkAllRead(c.Request.Context(), userID(c), s.clock.Now())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "all notifications marked as read", "updated": n})
}

// deleteNotification deletes one notification.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/notifications/12 --request "DELETE"
func (s *Server) deleteNotification(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteNotification(c.Request.Context(), userID(c), id); err != nil {
		s.fail(c, err, "notification not found")
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "notification deleted"})
}

// deleteReadNotifications deletes all notifications that have been read.
//
// Example REST API call:
//
//	> curl -H "X-User-ID: 1" http://localhost:8080/notifications/read --request "DELETE"
func (s *Server) deleteReadNotifications(c *gin.Context) {
	n, err := s.store.DeleteRead(c.Request.Context(), userID(c))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "read notifications deleted", "deleted": n})
}
