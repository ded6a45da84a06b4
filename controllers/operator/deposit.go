package operator

import (
	"errors"

	"colorbet/helpers"
	"colorbet/models"
	"colorbet/services"

	"github.com/gofiber/fiber/v2"
)

type DepositRequest struct {
	UserCode string        `json:"user_code"`
	Amount   models.Amount `json:"amount"`
	Ref      string        `json:"ref"`
	Promo    bool          `json:"promo"`
}

func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if req.UserCode == "" || req.Ref == "" {
		return helpers.JSONError(c, "USER_CODE_AND_REF_REQUIRED")
	}

	bucket := services.BucketPrimary
	if req.Promo {
		bucket = services.BucketPromo
	}

	res, err := h.Users.Deposit(c.UserContext(), req.UserCode, req.Amount, bucket, req.Ref)
	if err != nil && res == nil {
		return helpers.ServiceError(c, err)
	}

	data := fiber.Map{
		"user_code":       res.User.UserCode,
		"primary_balance": res.User.PrimaryBalance,
		"promo_balance":   res.User.PromoBalance,
		"ref_id":          req.Ref,
		"commissions":     res.Commissions,
	}
	if err != nil {
		// credited, but the cascade must be replayed via /operator/commission
		data["commission_error"] = services.CodeOf(err)
		return helpers.JSONSuccess(c, "Deposit credited, commission pending", data)
	}
	return helpers.JSONSuccess(c, "Deposit credited", data)
}

type CommissionRequest struct {
	UserCode string        `json:"user_code"`
	Amount   models.Amount `json:"amount"`
	Ref      string        `json:"ref"`
}

// Commission runs the DEPOSIT cascade for a deposit confirmed elsewhere.
func (h *Handler) Commission(c *fiber.Ctx) error {
	var req CommissionRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}

	user, err := h.Users.ByCode(c.UserContext(), req.UserCode)
	if err != nil {
		return helpers.ServiceError(c, err)
	}

	paid, err := h.Referral.ApplyCommission(c.UserContext(), user.ID, req.Amount, models.EventDeposit, req.Ref)
	if err != nil {
		if errors.Is(err, services.ErrCommissionApplied) {
			return helpers.JSONErrorStatus(c, fiber.StatusConflict, services.ErrCommissionApplied.Code)
		}
		return helpers.ServiceError(c, err)
	}
	return helpers.JSONSuccess(c, "Commission applied", fiber.Map{
		"user_code":   user.UserCode,
		"commissions": paid,
	})
}
