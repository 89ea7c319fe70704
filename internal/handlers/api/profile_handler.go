package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/billing"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/spf13/cast"
)

type ProfileHandler struct {
	userService *users.UserService
	billing     *billing.SubscriptionService
}

func NewProfileHandler(userService *users.UserService, billingService *billing.SubscriptionService) *ProfileHandler {
	return &ProfileHandler{
		userService: userService,
		billing:     billingService,
	}
}

type updateProfileRequest struct {
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=20"`
	City        *string `json:"city" validate:"omitempty,max=60"`
	Occupation  *string `json:"occupation" validate:"omitempty,max=60"`
	Biography   *string `json:"biography" validate:"omitempty,max=4000"`
}

// GetProfile returns the member profile. With ?fresh_subscription=1 the
// cached billing state is reconciled against the processor first.
func (h *ProfileHandler) GetProfile(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	var (
		profile *model.UserProfile
		err     error
	)
	if cast.ToBool(ctx.Query("fresh_subscription")) {
		profile, err = h.billing.Reconcile(ctx.Context(), claims.UserID)
	} else {
		profile, err = h.userService.GetProfile(ctx.Context(), claims.UserID)
	}
	if errors.Is(err, users.ErrProfileNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Profile not found")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newProfileResponse(profile)))
}

// PatchProfile updates the mutable profile fields. Absent fields are left
// untouched.
func (h *ProfileHandler) PatchProfile(ctx *fiber.Ctx) error {
	var req updateProfileRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	columns := map[string]interface{}{}
	if req.PhoneNumber != nil {
		columns["phone_number"] = *req.PhoneNumber
	}
	if req.City != nil {
		columns["city"] = *req.City
	}
	if req.Occupation != nil {
		columns["occupation"] = *req.Occupation
	}
	if req.Biography != nil {
		columns["biography"] = *req.Biography
	}
	if len(columns) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No fields to update")
	}
	claims := middlewares.TokenClaims(ctx)
	if err := h.userService.UpdateProfile(ctx.Context(), claims.UserID, columns); err != nil {
		return err
	}
	profile, err := h.userService.GetProfile(ctx.Context(), claims.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newProfileResponse(profile)))
}
