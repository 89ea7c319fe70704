package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/notifications"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/spf13/cast"
)

type NotificationHandler struct {
	notifications *notifications.NotificationService
}

func NewNotificationHandler(svc *notifications.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: svc}
}

type notificationResponse struct {
	ID          uint   `json:"id"`
	ActorID     *uint  `json:"actorId,omitempty"`
	Verb        string `json:"verb"`
	Description string `json:"description,omitempty"`
	TargetType  string `json:"targetType,omitempty"`
	TargetID    *uint  `json:"targetId,omitempty"`
	IsRead      bool   `json:"isRead"`
	CreatedAt   string `json:"createdAt"`
}

func newNotificationResponse(n *model.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		ActorID:     n.ActorID,
		Verb:        n.Verb,
		Description: n.Description,
		TargetType:  n.TargetType,
		TargetID:    n.TargetID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// GetNotifications lists the caller's notifications, newest first.
// ?unread=1 filters to unread, ?limit=N caps the result.
func (h *NotificationHandler) GetNotifications(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	unreadOnly := cast.ToBool(ctx.Query("unread"))
	limit := cast.ToInt(ctx.Query("limit"))
	rows, err := h.notifications.List(ctx.Context(), claims.UserID, unreadOnly, limit)
	if err != nil {
		return err
	}
	resp := make([]notificationResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, newNotificationResponse(row))
	}
	return ctx.JSON(NewDataResponse(resp))
}

// GetUnreadCount returns the caller's unread notification count.
func (h *NotificationHandler) GetUnreadCount(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	count, err := h.notifications.CountUnread(ctx.Context(), claims.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"unread": count}))
}

// PostMarkRead marks one notification read.
func (h *NotificationHandler) PostMarkRead(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	err := h.notifications.MarkRead(ctx.Context(), claims.UserID, cast.ToUint(ctx.Params("id")))
	if errors.Is(err, notifications.ErrNotificationNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Marked read"}))
}

// PostMarkAllRead marks every unread notification of the caller read.
func (h *NotificationHandler) PostMarkAllRead(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	if err := h.notifications.MarkAllRead(ctx.Context(), claims.UserID); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "All notifications marked read"}))
}
