package round

import (
	"colorbet/helpers"
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	Rounds *services.RoundService
}

func (h *Handler) Active(c *fiber.Ctx) error {
	view, err := h.Rounds.ActiveRound(c.UserContext())
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Active round", view)
}

func (h *Handler) Last(c *fiber.Ctx) error {
	view, err := h.Rounds.LastResult(c.UserContext())
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Last result", view)
}

// Stats returns house statistics for the latest rounds, ?n= defaults to 20.
func (h *Handler) Stats(c *fiber.Ctx) error {
	n := c.QueryInt("n", 20)
	if n <= 0 || n > 500 {
		return helpers.JSONError(c, "INVALID_N")
	}
	stats, err := h.Rounds.RecentStats(c.UserContext(), n)
	if err != nil {
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "House stats", stats)
}
