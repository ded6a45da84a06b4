package operator

import (
	"colorbet/helpers"
	"colorbet/models"

	"github.com/gofiber/fiber/v2"
)

type BlockRequest struct {
	UserCode string `json:"user_code"`
	Blocked  bool   `json:"blocked"`
}

func (h *Handler) BlockUser(c *fiber.Ctx) error {
	var req BlockRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.Users.SetBlocked(c.UserContext(), req.UserCode, req.Blocked); err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "User updated", fiber.Map{
		"user_code":  req.UserCode,
		"is_blocked": req.Blocked,
	})
}

type BetLimitRequest struct {
	UserCode string        `json:"user_code"`
	Limit    models.Amount `json:"limit"`
}

// BetLimit sets the per-bet ceiling for one user; 0 removes it.
func (h *Handler) BetLimit(c *fiber.Ctx) error {
	var req BetLimitRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.Users.SetBetLimit(c.UserContext(), req.UserCode, req.Limit); err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "User updated", fiber.Map{
		"user_code": req.UserCode,
		"bet_limit": req.Limit,
	})
}
