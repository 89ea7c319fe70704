package middlewares

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nobilishq/nobilis-server/internal/auth"
)

const claimsLocalsKey = "authClaims"

// Authenticate validates the bearer token and stores its claims in the
// request locals for handlers downstream.
func Authenticate(tokens *auth.TokenService) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		header := ctx.Get(fiber.HeaderAuthorization)
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing bearer token")
		}
		claims, err := tokens.VerifyAccessToken(ctx.Context(), tokenStr)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}
		ctx.Locals(claimsLocalsKey, claims)
		return ctx.Next()
	}
}

// RequireAdmin allows only tokens carrying the admin claim. Must run after
// Authenticate.
func RequireAdmin() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		claims := TokenClaims(ctx)
		if claims == nil || !claims.IsAdmin {
			return fiber.NewError(fiber.StatusForbidden, "Admin access required")
		}
		return ctx.Next()
	}
}

// TokenClaims returns the authenticated claims of the request, or nil on
// unauthenticated paths.
func TokenClaims(ctx *fiber.Ctx) *auth.TokenClaims {
	claims, _ := ctx.Locals(claimsLocalsKey).(*auth.TokenClaims)
	return claims
}
