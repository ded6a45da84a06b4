package middlewares

import (
	"strings"

	"colorbet/helpers"
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
)

const LocalUser = "user"

// UserAuth resolves the X-User-Code header to an active user and stores it in
// Locals under LocalUser. Blocked users pass; they are refused at bet time.
func UserAuth(users *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCode := strings.TrimSpace(c.Get("X-User-Code"))
		if userCode == "" {
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "USER_CODE_REQUIRED")
		}

		user, err := users.ByCode(c.UserContext(), userCode)
		if err != nil {
			return helpers.ServiceError(c, err)
		}
		c.Locals(LocalUser, user)
		return c.Next()
	}
}
