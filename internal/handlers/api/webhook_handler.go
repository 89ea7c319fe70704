package api

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/billing"
	"github.com/stripe/stripe-go/v76"
)

type WebhookHandler struct {
	processor *billing.WebhookProcessor
}

func NewWebhookHandler(processor *billing.WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// PostStripeWebhook receives provider event deliveries. It answers 400 only
// for signature or payload problems; processing failures are logged and
// acknowledged so the provider does not retry forever.
func (h *WebhookHandler) PostStripeWebhook(ctx *fiber.Ctx) error {
	payload := ctx.Body()
	signature := ctx.Get("Stripe-Signature")
	if !h.processor.VerifySignature(payload, signature) {
		return ctx.SendStatus(fiber.StatusBadRequest)
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		slog.Warn("Could not decode webhook payload", "error", err)
		return ctx.SendStatus(fiber.StatusBadRequest)
	}
	if err := h.processor.HandleEvent(ctx.Context(), &event); err != nil {
		slog.Error("Webhook event processing failed", "error", err, "eventId", event.ID, "type", event.Type)
	}
	return ctx.SendStatus(fiber.StatusOK)
}
