package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/notification"
)

// NotificationHandler exposes the in-app notification feed over HTTP
type NotificationHandler struct {
	notifications *notification.Repository
	logger        ectologger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *notification.Repository, logger ectologger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.POST("/notifications/:id/read", h.MarkRead)
	g.POST("/notifications/read-all", h.MarkAllRead)
}

// List returns the caller's notifications, newest first
func (h *NotificationHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	unreadOnly := c.QueryParam("unread") == "true"

	notifications, err := h.notifications.ListForUser(ctx, userID, unreadOnly)
	if err != nil {
		return err
	}

	return SuccessResponse(c, notifications)
}

// MarkRead marks one notification as read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.notifications.MarkRead(ctx, id, userID); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// MarkAllRead marks every unread notification as read
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkAllRead(ctx, userID); err != nil {
		return err
	}

	return NoContentResponse(c)
}
