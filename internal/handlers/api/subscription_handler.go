package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/audit"
	"github.com/nobilishq/nobilis-server/internal/billing"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
)

type SubscriptionHandler struct {
	billing     *billing.SubscriptionService
	userService *users.UserService
}

func NewSubscriptionHandler(billingService *billing.SubscriptionService, userService *users.UserService) *SubscriptionHandler {
	return &SubscriptionHandler{
		billing:     billingService,
		userService: userService,
	}
}

type createSubscriptionRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
	PriceID         string `json:"priceId" validate:"required"`
}

type subscriptionResponse struct {
	ID                uint   `json:"id"`
	Status            string `json:"status"`
	CurrentPeriodEnd  string `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
}

func newSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:                sub.ID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd != nil {
		resp.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return resp
}

// GetPlans lists the plan catalog. Public.
func (h *SubscriptionHandler) GetPlans(ctx *fiber.Ctx) error {
	plans, err := h.billing.ListPlans(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(plans))
}

// PostSubscribe creates a subscription for the authenticated member.
func (h *SubscriptionHandler) PostSubscribe(ctx *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	claims := middlewares.TokenClaims(ctx)
	user, err := h.userService.GetUserByID(ctx.Context(), claims.UserID)
	if err != nil {
		return err
	}
	record, err := h.billing.Create(ctx.Context(), user, req.PaymentMethodID, req.PriceID)
	switch {
	case errors.Is(err, billing.ErrPlanNotFound):
		return fiber.NewError(fiber.StatusBadRequest, "Unknown plan")
	case errors.Is(err, billing.ErrUpstream):
		slog.Error("Billing provider unavailable", "error", err, "userId", user.ID)
		return fiber.NewError(fiber.StatusBadGateway, "Payment provider is unavailable")
	case errors.Is(err, billing.ErrCustomerCreate),
		errors.Is(err, billing.ErrPaymentMethod),
		errors.Is(err, billing.ErrSubscriptionCreate):
		slog.Warn("Subscription creation rejected upstream", "error", err, "userId", user.ID)
		return fiber.NewError(fiber.StatusBadRequest, "Payment provider rejected the request")
	case err != nil:
		return err
	}
	h.recordSubscription(ctx, user, record.ID, false)
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(newSubscriptionResponse(record)))
}

// PostCancel schedules the member's subscription to end at the period
// boundary.
func (h *SubscriptionHandler) PostCancel(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	err := h.billing.Cancel(ctx.Context(), claims.UserID)
	switch {
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return fiber.NewError(fiber.StatusConflict, "No active subscription to cancel")
	case errors.Is(err, billing.ErrCancelScheduled):
		return fiber.NewError(fiber.StatusConflict, "Subscription is already scheduled for cancellation")
	case err != nil:
		return err
	}
	user, err := h.userService.GetUserByID(ctx.Context(), claims.UserID)
	if err == nil {
		h.recordSubscription(ctx, user, 0, true)
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"message": "Subscription will end at the current period boundary",
	}))
}

// GetSubscriptions lists the member's subscription history.
func (h *SubscriptionHandler) GetSubscriptions(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	subs, err := h.billing.ListUserSubscriptions(ctx.Context(), claims.UserID)
	if err != nil {
		return err
	}
	resp := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, newSubscriptionResponse(sub))
	}
	return ctx.JSON(NewDataResponse(resp))
}

func (h *SubscriptionHandler) recordSubscription(ctx *fiber.Ctx, user *model.User, subscriptionID uint, canceled bool) {
	err := audit.RecordSubscription(ctx.Context(), audit.SubscriptionRecord{
		UserID:         user.ID,
		Email:          user.Email,
		SubscriptionID: subscriptionID,
		Canceled:       canceled,
	})
	if err != nil {
		slog.Error("Could not record subscription audit event", "error", err, "userId", user.ID)
	}
}
