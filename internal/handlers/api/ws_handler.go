package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/auth"
	"github.com/nobilishq/nobilis-server/internal/notifications"
)

const wsUserIDKey = "wsUserId"

type WSHandler struct {
	hub    *notifications.Hub
	svc    *notifications.NotificationService
	tokens *auth.TokenService
}

func NewWSHandler(hub *notifications.Hub, svc *notifications.NotificationService, tokens *auth.TokenService) *WSHandler {
	return &WSHandler{
		hub:    hub,
		svc:    svc,
		tokens: tokens,
	}
}

// Upgrade authenticates the websocket handshake. Browsers cannot set an
// Authorization header on websocket connects, so the access token rides in
// the query string.
func (h *WSHandler) Upgrade(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	claims, err := h.tokens.VerifyAccessToken(ctx.Context(), ctx.Query("token"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}
	ctx.Locals(wsUserIDKey, claims.UserID)
	return ctx.Next()
}

// Handler serves the upgraded connection until it drops.
func (h *WSHandler) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(wsUserIDKey).(uint)
		if !ok || userID == 0 {
			conn.Close()
			return
		}
		client := notifications.NewClient(h.hub, h.svc, conn, userID)
		client.Serve()
	})
}
