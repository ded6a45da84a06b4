package helpers

import (
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
)

func JSONSuccess(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func JSONError(c *fiber.Ctx, message string) error {
	return JSONErrorStatus(c, fiber.StatusBadRequest, message)
}

func JSONErrorStatus(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    nil,
	})
}

// ServiceError maps a service error to its HTTP status and code.
func ServiceError(c *fiber.Ctx, err error) error {
	return JSONErrorStatus(c, StatusOf(err), services.CodeOf(err))
}

func StatusOf(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return fiber.StatusUnprocessableEntity
	case services.KindStateConflict:
		return fiber.StatusConflict
	case services.KindInsufficientBalance:
		return fiber.StatusPaymentRequired
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindTransientStorage:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
