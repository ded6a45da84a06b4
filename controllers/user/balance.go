package user

import (
	"colorbet/helpers"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Balance(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return helpers.JSONError(c, "INVALID_USER_SESSION")
	}

	return helpers.JSONSuccess(c, "Balance retrieved successfully", fiber.Map{
		"user_code":         user.UserCode,
		"primary_balance":   user.PrimaryBalance,
		"promo_balance":     user.PromoBalance,
		"available":         user.Available(),
		"total_wagered":     user.TotalWagered,
		"referral_earnings": user.ReferralEarnings,
		"is_blocked":        user.IsBlocked,
	})
}
