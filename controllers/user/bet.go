package user

import (
	"colorbet/helpers"
	"colorbet/models"

	"github.com/gofiber/fiber/v2"
)

type PlaceBetRequest struct {
	Outcome string        `json:"outcome"`
	Amount  models.Amount `json:"amount"`
}

func (h *Handler) PlaceBet(c *fiber.Ctx) error {
	var req PlaceBetRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	user, ok := currentUser(c)
	if !ok {
		return helpers.JSONError(c, "INVALID_USER_SESSION")
	}

	res, err := h.Bets.PlaceBet(c.UserContext(), user.ID, models.ParseOutcome(req.Outcome), req.Amount)
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Bet placed", res)
}

func (h *Handler) ListBets(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return helpers.JSONError(c, "INVALID_USER_SESSION")
	}

	bets, err := h.Bets.UserBets(c.UserContext(), user.ID, limitParam(c, 20, 100))
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Bets retrieved successfully", bets)
}

func (h *Handler) Commissions(c *fiber.Ctx) error {
	user, ok := currentUser(c)
	if !ok {
		return helpers.JSONError(c, "INVALID_USER_SESSION")
	}

	records, err := h.Referral.Records(c.UserContext(), user.ID, limitParam(c, 50, 500))
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Commissions retrieved successfully", records)
}

func limitParam(c *fiber.Ctx, def, ceiling int) int {
	n := c.QueryInt("limit", def)
	if n <= 0 {
		return def
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
