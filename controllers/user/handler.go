package user

import (
	"colorbet/models"
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Users    *services.UserService
	Bets     *services.BetService
	Referral *services.ReferralEngine
}

func currentUser(c *fiber.Ctx) (*models.User, bool) {
	u, ok := c.Locals("user").(*models.User)
	return u, ok
}
