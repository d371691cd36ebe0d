package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/repository"
)

// NotificationHandler handles the collaborator notification endpoints.
type NotificationHandler struct {
	notifications *repository.NotificationRepository
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the caller's notifications, newest first. ?unread=true limits
// to unread ones.
func (h *NotificationHandler) List(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	unreadOnly := c.QueryParam("unread") == "true"
	notifs, err := h.notifications.ListForCollaborator(c.Request().Context(), identity.UserID, unreadOnly)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, notifs)
}

// MarkRead acknowledges one of the caller's notifications.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid notification id", domain.ErrInvalidInput)
	}

	if err := h.notifications.MarkRead(c.Request().Context(), id, identity.UserID); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "notification read"})
}
