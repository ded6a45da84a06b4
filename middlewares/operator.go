package middlewares

import (
	"crypto/hmac"
	"crypto/sha256"

	"colorbet/helpers"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// OperatorAuth guards the back-office routes with a shared key sent in
// X-Operator-Key. An empty configured key disables the whole group.
func OperatorAuth(key string, log logrus.FieldLogger) fiber.Handler {
	expected := digest(key)

	return func(c *fiber.Ctx) error {
		if key == "" {
			return helpers.JSONErrorStatus(c, fiber.StatusForbidden, "OPERATOR_DISABLED")
		}

		given := c.Get("X-Operator-Key")
		if given == "" || !hmac.Equal(digest(given), expected) {
			log.WithFields(logrus.Fields{
				"path": c.Path(),
				"ip":   c.IP(),
			}).Warn("rejected operator request")
			return helpers.JSONErrorStatus(c, fiber.StatusUnauthorized, "INVALID_OPERATOR_KEY")
		}
		return c.Next()
	}
}

// digest hashes both sides so hmac.Equal compares equal-length inputs.
func digest(s string) []byte {
	h := hmac.New(sha256.New, []byte("operator"))
	h.Write([]byte(s))
	return h.Sum(nil)
}
