package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/audit"
	"github.com/nobilishq/nobilis-server/internal/auth"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/model"
)

// ResetMailer sends the password reset mail.
type ResetMailer interface {
	SendResetPasswordLink(email string, token string) error
}

type AuthHandler struct {
	userService *users.UserService
	tokens      *auth.TokenService
	mailer      ResetMailer
}

func NewAuthHandler(userService *users.UserService, tokens *auth.TokenService, mailer ResetMailer) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		mailer:      mailer,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type setPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type authSuccessResponse struct {
	User         UserInfoResponse `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
}

func (h *AuthHandler) issueTokens(ctx *fiber.Ctx, user *model.User) error {
	pair, err := h.tokens.IssueTokenPair(ctx.Context(), user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(authSuccessResponse{
		User:         newUserInfoResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}))
}

func (h *AuthHandler) recordLogin(ctx *fiber.Ctx, userID uint, email string, success bool, reason string) {
	err := audit.RecordLogin(ctx.Context(), audit.LoginRecord{
		UserID:    userID,
		Email:     email,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Success:   success,
		Reason:    reason,
	})
	if err != nil {
		slog.Error("Could not record login audit event", "error", err, "email", email)
	}
}

// PostLogin checks credentials and returns a token pair.
func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	user, err := h.userService.Authenticate(ctx.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, users.ErrAccountInactive):
		h.recordLogin(ctx, 0, req.Email, false, "account inactive")
		return fiber.NewError(fiber.StatusForbidden, "Account is not activated")
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, users.ErrUserNotFound):
		h.recordLogin(ctx, 0, req.Email, false, "invalid credentials")
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
	case err != nil:
		return err
	}
	h.recordLogin(ctx, user.ID, user.Email, true, "")
	return h.issueTokens(ctx, user)
}

// PostRefresh exchanges a refresh token for a fresh pair.
func (h *AuthHandler) PostRefresh(ctx *fiber.Ctx) error {
	var req refreshRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	claims, err := h.tokens.VerifyRefreshToken(ctx.Context(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired refresh token")
	}
	user, err := h.userService.GetUserByID(ctx.Context(), claims.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "Unknown user")
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return fiber.NewError(fiber.StatusForbidden, "Account is not active")
	}
	return h.issueTokens(ctx, user)
}

// PostSetPassword consumes an activation token, activating the account and
// logging the member in.
func (h *AuthHandler) PostSetPassword(ctx *fiber.Ctx) error {
	var req setPasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	user, err := h.userService.ActivateAccount(ctx.Context(), req.Token, req.Password)
	if errors.Is(err, users.ErrInvalidToken) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired activation token")
	}
	if err != nil {
		return err
	}
	if err := audit.RecordEvent(ctx.Context(), user.ID, user.Email, audit.EventTypeAccountActivated); err != nil {
		slog.Error("Could not record activation audit event", "error", err, "userId", user.ID)
	}
	return h.issueTokens(ctx, user)
}

// PostForgotPassword starts the password reset flow. The response does not
// reveal whether the email is registered.
func (h *AuthHandler) PostForgotPassword(ctx *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	token, user, err := h.userService.CreatePasswordReset(ctx.Context(), req.Email)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		return err
	}
	if err == nil {
		if mailErr := h.mailer.SendResetPasswordLink(user.Email, token); mailErr != nil {
			slog.Error("Could not send reset mail", "error", mailErr, "email", user.Email)
		}
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"message": "If the email is registered, a reset link has been sent",
	}))
}

// PostResetPassword consumes a reset token and sets the new password.
func (h *AuthHandler) PostResetPassword(ctx *fiber.Ctx) error {
	var req setPasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	user, err := h.userService.ResetPassword(ctx.Context(), req.Token, req.Password)
	if errors.Is(err, users.ErrInvalidToken) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired reset token")
	}
	if err != nil {
		return err
	}
	if err := audit.RecordEvent(ctx.Context(), user.ID, user.Email, audit.EventTypePasswordReset); err != nil {
		slog.Error("Could not record reset audit event", "error", err, "userId", user.ID)
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Password updated"}))
}

// PostChangePassword changes the password of the authenticated user.
func (h *AuthHandler) PostChangePassword(ctx *fiber.Ctx) error {
	var req changePasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	claims := middlewares.TokenClaims(ctx)
	err := h.userService.ChangePassword(ctx.Context(), claims.UserID, req.OldPassword, req.NewPassword)
	if errors.Is(err, users.ErrPasswordMismatch) {
		return fiber.NewError(fiber.StatusBadRequest, "Current password is incorrect")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"message": "Password updated"}))
}

// GetMe returns the authenticated user.
func (h *AuthHandler) GetMe(ctx *fiber.Ctx) error {
	claims := middlewares.TokenClaims(ctx)
	user, err := h.userService.GetUserByID(ctx.Context(), claims.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "Unknown user")
	}
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(newUserInfoResponse(user)))
}
