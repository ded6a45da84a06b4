package user

import (
	"colorbet/helpers"

	"github.com/gofiber/fiber/v2"
)

type RegisterUserRequest struct {
	UserCode     string `json:"user_code"`
	ReferralCode string `json:"referral_code"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterUserRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.UserCode == "" {
		return helpers.JSONError(c, "USER_CODE_REQUIRED")
	}

	user, err := h.Users.Register(c.UserContext(), req.UserCode, req.ReferralCode)
	if err != nil {
		return helpers.ServiceError(c, err)
	}

	return helpers.JSONSuccess(c, "User registered successfully", fiber.Map{
		"user_code":     user.UserCode,
		"referral_code": user.ReferralCode,
		"referred":      user.ReferredBy != nil,
	})
}
