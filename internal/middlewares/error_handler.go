package middlewares

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiErrorBody struct {
	APIVersion string         `json:"apiVersion"`
	Error      *errorResponse `json:"error"`
}

// ErrorHandler renders every error that escapes a handler as the JSON
// envelope. Internal errors are logged with their path and masked.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}
	if code == fiber.StatusInternalServerError {
		slog.Error("Unhandled error", "path", ctx.Path(), "error", err)
		message = "Internal server error"
	}
	return ctx.Status(code).JSON(apiErrorBody{
		APIVersion: "1.0",
		Error:      &errorResponse{Code: code, Message: message},
	})
}
