package middleware

import (
	"context"
	"strings"

	"coin-vault-service/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator is the part of the auth service client the stream needs.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuthMiddleware authenticates EventSource requests from the `token` and
// `device_id` query params, since browsers cannot attach headers to them.
func SSEAuthMiddleware(auth TokenValidator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := auth.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			logger.Warn("[SSEAuth] ❌ validation failed", zap.String("device_id", deviceID), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		c.Locals(LocalUserID, resp.UserID)
		c.Locals(LocalDeviceID, resp.DeviceID)
		c.Locals(LocalUserRoles, resp.Roles)
		return c.Next()
	}
}
