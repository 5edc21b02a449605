package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Locals keys set by UserContextMiddleware.
const (
	LocalUserID    = "user_id"
	LocalUserEmail = "user_email"
	LocalUserName  = "user_name"
)

// UserContextMiddleware extracts the user identity forwarded by the Gateway.
// Requests without X-User-ID are rejected: every team route is per-user.
func UserContextMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			logger.Warn("❌ [USER_CTX] X-User-ID required but missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserEmail, c.Get("X-User-Email"))
		c.Locals(LocalUserName, c.Get("X-User-Name"))

		logger.Debug("👤 [USER_CTX] request identity", zap.String("user_id", userID), zap.String("path", c.Path()))
		return c.Next()
	}
}

// UserFromLocals reads back what UserContextMiddleware stored.
func UserFromLocals(c *fiber.Ctx) (userID, email, username string) {
	userID, _ = c.Locals(LocalUserID).(string)
	email, _ = c.Locals(LocalUserEmail).(string)
	username, _ = c.Locals(LocalUserName).(string)
	return userID, email, username
}
