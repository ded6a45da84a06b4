package operator

import (
	"colorbet/helpers"
	"colorbet/models"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetSettings(c *fiber.Ctx) error {
	setting, err := h.Settings.Get(c.UserContext())
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Settings retrieved successfully", fiber.Map{
		"forced_winner": setting.ForcedWinner,
		"weights":       setting.Weights.Data(),
		"updated_at":    setting.UpdatedAt,
	})
}

type ForcedWinnerRequest struct {
	Outcome string `json:"outcome"`
}

func (h *Handler) SetForcedWinner(c *fiber.Ctx) error {
	var req ForcedWinnerRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	outcome := models.ParseOutcome(req.Outcome)
	if err := h.Settings.SetForcedWinner(c.UserContext(), outcome); err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Forced winner armed for next settlement", fiber.Map{"outcome": outcome})
}

func (h *Handler) ClearForcedWinner(c *fiber.Ctx) error {
	if err := h.Settings.ClearForcedWinner(c.UserContext()); err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Forced winner cleared", nil)
}

type WeightsRequest struct {
	Weights map[string]float64 `json:"weights"`
}

func (h *Handler) SetWeights(c *fiber.Ctx) error {
	var req WeightsRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.Settings.SetWeights(c.UserContext(), req.Weights); err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Weights updated", req.Weights)
}
